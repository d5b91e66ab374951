package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"energy-flow-monitor/internal/app"
)

var (
	simImported  string
	simExported  string
	simProduced  string
	simCharge    string
	simDischarge string
	simCO2       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a synthetic metering interval through the derivation pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{}
		for _, f := range []struct {
			name  string
			raw   string
			value *decimal.Decimal
		}{
			{"imported", simImported, &opts.Imported},
			{"exported", simExported, &opts.Exported},
			{"produced", simProduced, &opts.Produced},
			{"charge", simCharge, &opts.Charge},
			{"discharge", simDischarge, &opts.Discharge},
			{"co2", simCO2, &opts.CO2Intensity},
		} {
			d, err := decimal.NewFromString(f.raw)
			if err != nil {
				return fmt.Errorf("invalid --%s value: %w", f.name, err)
			}
			*f.value = d
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simImported, "imported", "0.5", "Imported energy increment in kWh")
	simulateCmd.Flags().StringVar(&simExported, "exported", "0", "Exported energy increment in kWh")
	simulateCmd.Flags().StringVar(&simProduced, "produced", "0.2", "Produced energy increment in kWh")
	simulateCmd.Flags().StringVar(&simCharge, "charge", "0.1", "Battery charge increment in kWh")
	simulateCmd.Flags().StringVar(&simDischarge, "discharge", "0", "Battery discharge increment in kWh")
	simulateCmd.Flags().StringVar(&simCO2, "co2", "300", "Grid CO2 intensity in g/kWh")
}
