package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"energy-flow-monitor/internal/history"
)

// Export renders the daily snapshot history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Days <= 0 {
		opts.Days = a.Config.Export.Days
	}

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
	hist := history.NewStore(store, loc, a.Logger)
	if err := hist.Load(ctx, now); err != nil {
		return err
	}

	snapshots := hist.Snapshots()
	cutoff := now.In(loc).AddDate(0, 0, -opts.Days).Format("2006-01-02")
	kept := snapshots[:0]
	for _, snap := range snapshots {
		if snap.Date >= cutoff {
			kept = append(kept, snap)
		}
	}
	snapshots = kept
	if len(snapshots) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}

	// Oldest first reads naturally in both outputs.
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Date < snapshots[j].Date
	})

	a.Logger.Info().Int("days", opts.Days).Int("exported", len(snapshots)).Msg("exporting daily snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, snapshots); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, snapshots, loc); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshotsCSV(path string, snapshots []history.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "net_use_kwh", "production_kwh", "export_kwh", "night_use_kwh", "emissions_kg", "self_sufficiency_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snapshots {
		record := []string{
			snap.Date,
			fmt.Sprintf("%.3f", snap.Values[history.MetricNetUse]),
			fmt.Sprintf("%.3f", snap.Values[history.MetricProduction]),
			fmt.Sprintf("%.3f", snap.Values[history.MetricExport]),
			fmt.Sprintf("%.3f", snap.Values[history.MetricNightUse]),
			fmt.Sprintf("%.3f", snap.Values[history.MetricEmissions]),
			fmt.Sprintf("%.1f", snap.Values[history.MetricSelfSufficiency]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSnapshotsPNG(path string, snapshots []history.Snapshot, loc *time.Location) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(snapshots))
	netUse := make([]float64, 0, len(snapshots))
	production := make([]float64, 0, len(snapshots))
	selfSuff := make([]float64, 0, len(snapshots))

	for _, snap := range snapshots {
		day, err := time.ParseInLocation("2006-01-02", snap.Date, loc)
		if err != nil {
			continue
		}
		x = append(x, day)
		netUse = append(netUse, snap.Values[history.MetricNetUse])
		production = append(production, snap.Values[history.MetricProduction])
		selfSuff = append(selfSuff, snap.Values[history.MetricSelfSufficiency])
	}
	if len(x) < 2 {
		return errors.New("need at least two snapshots to render a chart")
	}

	energyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Energy (kWh)",
			ValueFormatter: energyFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Self-sufficiency (%)",
			ValueFormatter: energyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Net use",
				XValues: x,
				YValues: netUse,
			},
			chart.TimeSeries{
				Name:    "Production",
				XValues: x,
				YValues: production,
			},
			chart.TimeSeries{
				Name:    "Self-sufficiency %",
				XValues: x,
				YValues: selfSuff,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
