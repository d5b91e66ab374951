package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"energy-flow-monitor/internal/accumulator"
	"energy-flow-monitor/internal/derive"
	"energy-flow-monitor/internal/history"
	"energy-flow-monitor/internal/period"
)

// Show prints the current period sums and the most recent daily
// snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	now := time.Now()

	acc := accumulator.New(store, derive.Specs(), loc, a.Logger)
	if err := acc.Load(ctx); err != nil {
		return err
	}

	hist := history.NewStore(store, loc, a.Logger)
	if err := hist.Load(ctx, now); err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "Metric\tToday\tWeek\tMonth\tYear\tOverall")
	for _, spec := range derive.Specs() {
		if !spec.IncludePeriods && !spec.IncludeOverall {
			continue
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			spec.Key,
			formatDecimal(acc.Value(spec.Key, period.KeyDay, now), 3),
			formatDecimal(acc.Value(spec.Key, period.KeyWeek, now), 3),
			formatDecimal(acc.Value(spec.Key, period.KeyMonth, now), 3),
			formatDecimal(acc.Value(spec.Key, period.KeyYear, now), 3),
			formatDecimal(acc.Value(spec.Key, period.KeyOverall, now), 3),
		)
	}
	fmt.Fprintf(writer, "self_sufficiency_pct\t%s\t%s\t%s\t%s\t%s\n",
		formatDecimal(acc.SelfSufficiency(period.KeyDay, now), 1),
		formatDecimal(acc.SelfSufficiency(period.KeyWeek, now), 1),
		formatDecimal(acc.SelfSufficiency(period.KeyMonth, now), 1),
		formatDecimal(acc.SelfSufficiency(period.KeyYear, now), 1),
		formatDecimal(acc.SelfSufficiency(period.KeyOverall, now), 1),
	)
	writer.Flush()

	snapshots := hist.Snapshots()
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "\nno daily snapshots recorded")
		return nil
	}
	if opts.Limit > 0 && len(snapshots) > opts.Limit {
		snapshots = snapshots[:opts.Limit]
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tNetUse\tProduction\tExport\tNightUse\tEmissions\tSelfSuff%")
	for _, snap := range snapshots {
		fmt.Fprintf(
			writer,
			"%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.1f\n",
			snap.Date,
			snap.Values[history.MetricNetUse],
			snap.Values[history.MetricProduction],
			snap.Values[history.MetricExport],
			snap.Values[history.MetricNightUse],
			snap.Values[history.MetricEmissions],
			snap.Values[history.MetricSelfSufficiency],
		)
	}
	writer.Flush()
	return nil
}
