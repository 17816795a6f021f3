package main

import (
	"encoding/json"
	"os"

	"github.com/Dan9191/advance-service/internal/database"
	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/repository"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/spf13/cobra"
)

func deductionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deductions",
		Short: "Operate the daily installment batch",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Deduct every installment due today and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := database.Open(cmd.Context(), cfg.DBConn)
			if err != nil {
				return err
			}
			defer db.Close()

			bus := events.NewBus()
			closeNotifications := startNotifications(cfg, db, bus, logger)
			defer closeNotifications()

			scheduler := service.NewDeductionScheduler(repository.NewUnitOfWorkFactory(db, bus), cfg, logger)
			report, err := scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	})

	return cmd
}
