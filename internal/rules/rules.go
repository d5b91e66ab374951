// Package rules implements the declarative notification rule engine: a
// fixed, ordered list of total predicates over a flat metrics record.
package rules

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Severity levels.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityAlarm   = "alarm"
)

// RateLimit caps how often a rule may fire per rolling period.
type RateLimit struct {
	Max int
	Per time.Duration
}

// Rule is a static notification descriptor. Check must be a total
// function over Metrics; an error skips this rule only.
type Rule struct {
	Key                 string
	Name                string
	MessageNL           string
	MessageEN           string
	Severity            string
	SuppressedOnHoliday bool
	MaxPerPeriod        *RateLimit
	Check               func(Metrics) (bool, error)
}

// ErrNoHistory signals a check could not run for lack of data. It is
// logged at debug rather than error level.
var ErrNoHistory = errors.New("rules: insufficient history")

// awardGate is the shared precondition for record-type awards: only near
// award time, only with sufficient history, and only when today showed
// at least half of the usual activity. A "record" on a day where the
// sensors were quiet would be an artifact, not an achievement.
func awardGate(m Metrics) bool {
	if !m.AwardTime || !m.SufficientHistory {
		return false
	}
	if m.Production7dAvg > 0 && m.ProductionToday >= m.Production7dAvg*0.5 {
		return true
	}
	if m.NetUse7dAvg > 0 && m.NetUseToday >= m.NetUse7dAvg*0.5 {
		return true
	}
	return false
}

func checkDataGap(m Metrics) (bool, error) {
	return m.HasDataGap, nil
}

func checkSelfSufficiencyRecord(m Metrics) (bool, error) {
	if !awardGate(m) {
		return false, nil
	}
	// SSToday is on the percent scale, so the 0.7 floor only rejects
	// days with essentially no self-sufficiency at all. Kept as-is;
	// raising it to 70 would change which records count.
	return m.SSToday > m.SSMax30d && m.SSToday > 0.7, nil
}

func checkHighExportRatio(m Metrics) (bool, error) {
	if m.Production7dAvg <= 0 {
		return false, nil
	}
	return m.Export7dAvg/m.Production7dAvg > 0.40, nil
}

func checkDoubleDailyConsumption(m Metrics) (bool, error) {
	if m.NetUse7dAvg <= 0 {
		return false, nil
	}
	return m.NetUseToday > 2*m.NetUse7dAvg, nil
}

func checkQuadrupleDailyConsumption(m Metrics) (bool, error) {
	if m.NetUse7dAvg <= 0 {
		return false, nil
	}
	return m.NetUseToday > 4*m.NetUse7dAvg, nil
}

func checkHighNightConsumption(m Metrics) (bool, error) {
	if m.NightUse7dAvg <= 0 {
		return false, nil
	}
	return m.NightUseToday > 4*m.NightUse7dAvg, nil
}

func checkBaseloadTrendUpMonthly(m Metrics) (bool, error) {
	if m.NetUse30dAvg <= 0 {
		return false, nil
	}
	return m.NetUse7dAvg > m.NetUse30dAvg*1.15, nil
}

func checkBaseloadTrendUpQuarterly(m Metrics) (bool, error) {
	if m.NetUse90dAvg <= 0 {
		return false, nil
	}
	return m.NetUse30dAvg > m.NetUse90dAvg*1.15, nil
}

func checkEmissionsRecordLow(m Metrics) (bool, error) {
	if !awardGate(m) {
		return false, nil
	}
	if m.EmissionsToday >= NoDataSentinel || m.EmissionsMin30d >= NoDataSentinel {
		return false, ErrNoHistory
	}
	return m.EmissionsToday < m.EmissionsMin30d, nil
}

func checkNetUseRecordLow(m Metrics) (bool, error) {
	if !awardGate(m) {
		return false, nil
	}
	if m.NetUseToday >= NoDataSentinel || m.NetUseMin30d >= NoDataSentinel {
		return false, ErrNoHistory
	}
	return m.NetUseToday < m.NetUseMin30d, nil
}

func checkWeeklyImprovementGoal(m Metrics) (bool, error) {
	return m.WeeklyTrigger, nil
}

// All returns the fixed rule list. Order has no semantic effect; every
// matching rule fires.
func All() []Rule {
	return []Rule{
		{
			Key:       "ef_warning_data_gap",
			Name:      "Warning Data Gap",
			MessageNL: "Waarschuwing: 1 of meerdere data input is onbeschikbaar.",
			MessageEN: "Warning: One or more data inputs are unavailable.",
			Severity:  SeverityWarning,
			Check:     checkDataGap,
		},
		{
			Key:                 "ef_info_self_sufficiency_record",
			Name:                "Info Self Sufficiency Record",
			MessageNL:           "Award! Record in zelfvoorzienendheid.",
			MessageEN:           "Award! Record in self-sufficiency.",
			Severity:            SeverityInfo,
			SuppressedOnHoliday: true,
			Check:               checkSelfSufficiencyRecord,
		},
		{
			Key:                 "ef_tip_reduce_export_increase_self_use",
			Name:                "Tip Reduce Export",
			MessageNL:           "Tip! Je levert veel terug aan het net (>40%). Probeer eigenverbruik te verhogen.",
			MessageEN:           "Tip! You export a lot to the grid (>40%). Try to increase self-consumption.",
			Severity:            SeverityInfo,
			SuppressedOnHoliday: true,
			MaxPerPeriod:        &RateLimit{Max: 1, Per: 30 * 24 * time.Hour},
			Check:               checkHighExportRatio,
		},
		{
			Key:       "ef_warning_2x_daily_consumption",
			Name:      "Warning 2x Daily Consumption",
			MessageNL: "Let op! Je hebt een 2x zo hoog verbruik vandaag dan gemiddeld.",
			MessageEN: "Warning! Your consumption today is 2x higher than average.",
			Severity:  SeverityWarning,
			Check:     checkDoubleDailyConsumption,
		},
		{
			Key:       "ef_warning_4x_daily_consumption",
			Name:      "Warning 4x Daily Consumption",
			MessageNL: "Let op! Je hebt een 4x zo hoog verbruik vandaag dan gemiddeld.",
			MessageEN: "Warning! Your consumption today is 4x higher than average.",
			Severity:  SeverityWarning,
			Check:     checkQuadrupleDailyConsumption,
		},
		{
			Key:       "ef_warning_high_night_consumption",
			Name:      "Warning High Night Consumption",
			MessageNL: "Let op! Je hebt een veel hoger verbruik in de nacht dan gemiddeld.",
			MessageEN: "Warning! Your night consumption is much higher than average.",
			Severity:  SeverityWarning,
			Check:     checkHighNightConsumption,
		},
		{
			Key:       "ef_warning_baseload_trend_up",
			Name:      "Warning Baseload Trend Up (Monthly)",
			MessageNL: "Let op! Je gemiddeld energie verbruik over de laatste maand neemt toe.",
			MessageEN: "Warning! Your average energy consumption over the last month is increasing.",
			Severity:  SeverityWarning,
			Check:     checkBaseloadTrendUpMonthly,
		},
		{
			Key:       "ef_warning_baseload_trend_up_quarterly",
			Name:      "Warning Baseload Trend Up (Quarterly)",
			MessageNL: "Let op! Je gemiddeld energie verbruik over de laatste 3 maanden neemt toe.",
			MessageEN: "Warning! Your average energy consumption over the last 3 months is increasing.",
			Severity:  SeverityWarning,
			Check:     checkBaseloadTrendUpQuarterly,
		},
		{
			Key:                 "ef_info_co2_emissions_record",
			Name:                "Info CO2 Emissions Record",
			MessageNL:           "Award! Record in lage CO2 emissies vandaag.",
			MessageEN:           "Award! Record low CO2 emissions today.",
			Severity:            SeverityInfo,
			SuppressedOnHoliday: true,
			Check:               checkEmissionsRecordLow,
		},
		{
			Key:                 "ef_info_net_energy_use_record",
			Name:                "Info Net Energy Use Record",
			MessageNL:           "Award! Record in laag energieverbruik vandaag.",
			MessageEN:           "Award! Record low energy consumption today.",
			Severity:            SeverityInfo,
			SuppressedOnHoliday: true,
			Check:               checkNetUseRecordLow,
		},
		{
			Key:       "ef_tip_weekly_improvement_goal",
			Name:      "Weekly Improvement Goal",
			MessageNL: "Weekly Tip! Bekijk je energierapport van deze week.",
			MessageEN: "Weekly Tip! Review this week's energy report.",
			Severity:  SeverityInfo,
			Check:     checkWeeklyImprovementGoal,
		},
	}
}

// ByKey looks up one rule.
func ByKey(key string) (Rule, bool) {
	for _, r := range All() {
		if r.Key == key {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate runs every rule against the metrics record and returns the
// active set keyed by rule, with messages in the requested language
// ("nl" or "en"; anything else falls back to English). A failing check
// is logged and skipped without affecting the other rules.
func Evaluate(ruleSet []Rule, m Metrics, presenceMode, language string, logger zerolog.Logger) map[string]string {
	active := make(map[string]string)
	isHoliday := strings.EqualFold(presenceMode, "holiday")

	for _, rule := range ruleSet {
		if rule.SuppressedOnHoliday && isHoliday {
			continue
		}

		fired, err := rule.Check(m)
		if err != nil {
			evt := logger.Warn()
			if errors.Is(err, ErrNoHistory) {
				evt = logger.Debug()
			}
			evt.Err(err).Str("rule", rule.Key).Msg("rule check skipped")
			continue
		}
		if !fired {
			continue
		}

		if language == "nl" {
			active[rule.Key] = rule.MessageNL
		} else {
			active[rule.Key] = rule.MessageEN
		}
	}

	return active
}
