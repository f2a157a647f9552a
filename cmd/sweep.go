package cmd

import (
	"encoding/json"
	"os"

	"kenya-earn/database"
	"kenya-earn/workers"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-verify pending activation payments once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		payments, err := newPaymentService(cmd.Context(), db)
		if err != nil {
			return err
		}
		worker := workers.NewPaymentSweepWorker(payments, cfg.Sweep.Interval, cfg.Sweep.MinAge, cfg.Sweep.PaymentTTL)
		stats, err := worker.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}
