package validation

import "time"

// ReferencePoint is one ground-truth daily bar sourced from exchange
// records, used to spot silently corrupted or misaligned data.
type ReferencePoint struct {
	Symbol string
	Date   time.Time
	Open   float64
	Close  float64
	Volume float64
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// knownPoints covers a handful of widely held symbols around
// year boundaries, where off-by-one date bugs show up first.
var knownPoints = []ReferencePoint{
	{Symbol: "AAPL", Date: day(2021, time.January, 4), Open: 133.52, Close: 129.41, Volume: 1433019},
	{Symbol: "AAPL", Date: day(2021, time.December, 31), Open: 178.09, Close: 177.57, Volume: 1051585},
	{Symbol: "AAPL", Date: day(2022, time.January, 3), Open: 177.83, Close: 182.01, Volume: 1044879},
	{Symbol: "MSFT", Date: day(2021, time.January, 4), Open: 222.42, Close: 217.69, Volume: 37130100},
	{Symbol: "MSFT", Date: day(2021, time.December, 31), Open: 336.32, Close: 334.69, Volume: 21113900},
	{Symbol: "MSFT", Date: day(2022, time.January, 3), Open: 334.69, Close: 336.78, Volume: 25892900},
}

// referencesFor returns the known points for a symbol, which may be empty.
func referencesFor(symbol string) []ReferencePoint {
	var out []ReferencePoint
	for _, p := range knownPoints {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}
