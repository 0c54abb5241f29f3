package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"papertrader/internal/models"
)

// addPortfolioCommands adds account and ledger inspection commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newFundsCmd(app))
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Show open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			positions := app.Engine.ListOpenPositions(app.UserID)
			if output.IsJSON() {
				return output.JSON(positions)
			}

			if len(positions) == 0 {
				output.Info("No open positions")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Side", "Qty", "Entry", "LTP", "P&L", "Margin")
			totalPnL := 0.0
			for _, p := range positions {
				totalPnL += p.UnrealizedPnL
				table.AddRow(
					TruncateString(p.ID, 8),
					p.Symbol,
					string(p.Side),
					formatInt(p.Quantity),
					FormatPrice(p.EntryPrice),
					FormatPrice(p.CurrentPrice),
					output.FormatPnL(p.UnrealizedPnL),
					FormatIndianCurrency(p.MarginUsed),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Total unrealized: %s\n", output.FormatPnL(totalPnL))
			return nil
		},
	}
}

func newOrdersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			orders := app.Engine.ListPendingOrders(app.UserID)
			if output.IsJSON() {
				return output.JSON(orders)
			}

			if len(orders) == 0 {
				output.Info("No pending orders")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Side", "Type", "Qty", "Price", "Margin", "Placed")
			for _, o := range orders {
				table.AddRow(
					TruncateString(o.ID, 8),
					o.Symbol,
					string(o.Side),
					string(o.Type),
					formatInt(o.Quantity),
					FormatPrice(o.Price),
					FormatIndianCurrency(o.MarginBlocked),
					FormatTime(o.PlacedAt),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show settled orders and exited positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			history := app.Engine.ListHistory(app.UserID)
			if limit > 0 {
				if len(history.Orders) > limit {
					history.Orders = history.Orders[:limit]
				}
				if len(history.Positions) > limit {
					history.Positions = history.Positions[:limit]
				}
			}

			if output.IsJSON() {
				return output.JSON(history)
			}

			if len(history.Orders) == 0 && len(history.Positions) == 0 {
				output.Info("No trading history yet")
				return nil
			}

			if len(history.Orders) > 0 {
				output.Bold("Orders")
				table := NewTable(output, "ID", "Symbol", "Side", "Type", "Status", "Fill", "Placed")
				for _, o := range history.Orders {
					fill := "-"
					if o.FilledQty > 0 {
						fill = fmt.Sprintf("%d @ %s", o.FilledQty, FormatPrice(o.AveragePrice))
					}
					table.AddRow(
						TruncateString(o.ID, 8),
						o.Symbol,
						string(o.Side),
						string(o.Type),
						formatOrderStatus(output, o.Status),
						fill,
						FormatDateTime(o.PlacedAt),
					)
				}
				table.Render()
				output.Println()
			}

			if len(history.Positions) > 0 {
				output.Bold("Positions")
				table := NewTable(output, "ID", "Symbol", "Side", "Qty", "Entry", "Exit", "P&L", "Status")
				totalPnL := 0.0
				for _, p := range history.Positions {
					totalPnL += p.RealizedPnL
					status := string(p.Status)
					if p.SquareOff != "" {
						status = fmt.Sprintf("%s (%s)", p.Status, p.SquareOff)
					}
					table.AddRow(
						TruncateString(p.ID, 8),
						p.Symbol,
						string(p.Side),
						formatInt(p.Quantity),
						FormatPrice(p.EntryPrice),
						FormatPrice(p.ExitPrice),
						output.FormatPnL(p.RealizedPnL),
						status,
					)
				}
				table.Render()
				output.Println()
				output.Printf("Total realized: %s\n", output.FormatPnL(totalPnL))
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 0, "Limit number of rows (0 = all)")

	return cmd
}

func formatOrderStatus(output *Output, status models.OrderStatus) string {
	switch status {
	case models.OrderExecuted:
		return output.Green(string(status))
	case models.OrderRejected:
		return output.Red(string(status))
	case models.OrderCancelled:
		return output.Yellow(string(status))
	default:
		return string(status)
	}
}

func newFundsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "Show account balance and blocked margin",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			available, blocked := app.Engine.Funds(app.UserID)
			if output.IsJSON() {
				return output.JSON(map[string]float64{
					"available": available,
					"blocked":   blocked,
					"total":     available + blocked,
				})
			}

			output.Bold("Account Funds")
			output.Printf("  Available: %s\n", FormatIndianCurrency(available))
			output.Printf("  Blocked:   %s\n", FormatIndianCurrency(blocked))
			output.Printf("  Total:     %s\n", FormatIndianCurrency(available+blocked))
			return nil
		},
	}
}
