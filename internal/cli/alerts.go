package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mintstack/internal/models"
)

// newAlertsCmd builds the alert management command group.
func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage price alerts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <symbol>",
		Short: "List active alerts for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataStore, err := app.openStore()
			if err != nil {
				return err
			}

			alerts, err := dataStore.ActiveAlertsBySymbol(context.Background(), args[0])
			if err != nil {
				return err
			}

			if len(alerts) == 0 {
				fmt.Println("No active alerts")
				return nil
			}
			for _, a := range alerts {
				fmt.Printf("%s  %s %s %.2f (baseline %.2f, user %s)\n",
					a.ID, a.Symbol, a.Type, a.TargetValue, a.BaselineValue, a.UserID)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user> <symbol> <type> <target>",
		Short: "Create a price alert (type: ABOVE, BELOW, PERCENT_UP, PERCENT_DOWN)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataStore, err := app.openStore()
			if err != nil {
				return err
			}

			target, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("invalid target value: %s", args[3])
			}

			ctx := context.Background()
			baseline := 0.0
			if quote, err := dataStore.GetQuote(ctx, args[1]); err == nil {
				baseline = quote.CurrentPrice
			}

			a := &models.PriceAlert{
				ID:            uuid.NewString(),
				UserID:        args[0],
				Symbol:        args[1],
				Type:          models.AlertType(args[2]),
				TargetValue:   target,
				BaselineValue: baseline,
				State:         models.AlertActive,
				CreatedAt:     time.Now(),
			}
			if err := dataStore.SaveAlert(ctx, a); err != nil {
				return err
			}

			fmt.Printf("Alert %s created\n", a.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <alert-id>",
		Short: "Deactivate an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataStore, err := app.openStore()
			if err != nil {
				return err
			}

			if err := dataStore.DeactivateAlert(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("Alert deactivated")
			return nil
		},
	})

	return cmd
}
