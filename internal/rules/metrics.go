package rules

// NoDataSentinel is returned by minimum queries when no snapshot
// qualifies. Checks must treat it as "insufficient data", never as a
// genuine minimum.
const NoDataSentinel = 999999.0

// Metrics is the fixed-shape input every rule check receives. The zero
// value is a safe default for every field: flags default to false,
// averages and today-values to 0, and minimums should be set to
// NoDataSentinel by the assembler (a zero minimum would fire record
// checks spuriously, which the checks guard against anyway).
type Metrics struct {
	HasDataGap bool

	SSToday         float64
	NetUseToday     float64
	ProductionToday float64
	NightUseToday   float64
	EmissionsToday  float64

	NetUse7dAvg     float64
	NightUse7dAvg   float64
	Export7dAvg     float64
	Production7dAvg float64

	NetUse30dAvg float64
	NetUse90dAvg float64

	SSMax30d        float64
	EmissionsMin30d float64
	NetUseMin30d    float64

	SufficientHistory bool
	AwardTime         bool
	WeeklyTrigger     bool
}
