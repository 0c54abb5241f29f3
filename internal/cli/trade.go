package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/engine"
	"papertrader/internal/errors"
	"papertrader/internal/logging"
	"papertrader/internal/models"
)

// addTradingCommands adds order placement and position exit commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBuyCmd(app))
	rootCmd.AddCommand(newSellCmd(app))
	rootCmd.AddCommand(newCancelCmd(app))
	rootCmd.AddCommand(newExecuteCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newCloseAllCmd(app))
}

func newBuyCmd(app *App) *cobra.Command {
	return newOrderCmd(app, models.OrderSideBuy, "buy SYMBOL", "Place a buy order",
		`Place a buy order for an instrument.

Market orders execute immediately at the current ask price. Limit and
stop orders stay pending until their trigger condition is met.`,
		`  papertrader buy RELIANCE --lots 10
  papertrader buy NIFTYFUT --lots 2 --leverage 5
  papertrader buy TCS --lots 5 --type LIMIT --price 4100`)
}

func newSellCmd(app *App) *cobra.Command {
	return newOrderCmd(app, models.OrderSideSell, "sell SYMBOL", "Place a sell order",
		`Place a sell order for an instrument.

Market orders execute immediately at the current bid price. Limit and
stop orders stay pending until their trigger condition is met.`,
		`  papertrader sell RELIANCE --lots 10
  papertrader sell BANKNIFTYFUT --lots 1 --leverage 10 --product INTRADAY`)
}

func newOrderCmd(app *App, side models.OrderSide, use, short, long, example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			symbol := strings.ToUpper(args[0])
			exchange, _ := cmd.Flags().GetString("exchange")
			lots, _ := cmd.Flags().GetInt("lots")
			orderType, _ := cmd.Flags().GetString("type")
			product, _ := cmd.Flags().GetString("product")
			leverage, _ := cmd.Flags().GetFloat64("leverage")
			price, _ := cmd.Flags().GetFloat64("price")

			inst, err := app.Refdata.Lookup(models.Exchange(strings.ToUpper(exchange)), symbol)
			if err != nil {
				output.Error("Unknown instrument %s on %s", symbol, exchange)
				return err
			}

			app.startFeed(ctx)
			if _, err := app.waitForQuote(ctx, inst.Token, 10*time.Second); err != nil {
				output.Error("No market data for %s: %v", symbol, err)
				return err
			}

			order, err := app.Engine.PlaceOrder(ctx, engine.PlaceOrderRequest{
				UserID:   app.UserID,
				Token:    inst.Token,
				Side:     side,
				Type:     models.OrderType(strings.ToUpper(orderType)),
				Product:  models.ProductType(strings.ToUpper(product)),
				Lots:     lots,
				Leverage: leverage,
				Price:    price,
			})
			if err != nil {
				if order != nil && order.Status == models.OrderRejected {
					printRejection(output, order)
					return err
				}
				output.Error("Order failed: %v", err)
				return err
			}

			logger := logging.WithOrderID(logging.WithSymbol(logging.FromContext(ctx), order.Symbol), order.ID)
			logger.Info().Str("status", string(order.Status)).Msg("Order placed")

			if output.IsJSON() {
				return output.JSON(order)
			}
			printOrderResult(output, order)
			return nil
		},
	}

	cmd.Flags().StringP("exchange", "e", "NSE", "Exchange (NSE, BSE, NFO, MCX, CRYPTO)")
	cmd.Flags().IntP("lots", "l", 1, "Number of lots")
	cmd.Flags().StringP("type", "t", "MARKET", "Order type (MARKET, LIMIT, SL, SL-M)")
	cmd.Flags().StringP("product", "p", "INTRADAY", "Product type (INTRADAY, DELIVERY, CARRY_FORWARD)")
	cmd.Flags().Float64P("leverage", "x", 1, "Leverage multiplier")
	cmd.Flags().Float64("price", 0, "Limit/trigger price (required for non-market orders)")

	return cmd
}

func printOrderResult(output *Output, order *models.Order) {
	switch order.Status {
	case models.OrderExecuted:
		output.Success("✓ %s %d x %s executed at %s", order.Side, order.Quantity, order.Symbol, FormatPrice(order.AveragePrice))
		output.Printf("  Order ID:    %s\n", order.ID)
		output.Printf("  Position ID: %s\n", order.PositionID)
		output.Printf("  Margin:      %s (%gx leverage)\n", FormatIndianCurrency(order.MarginBlocked), order.Leverage)
	case models.OrderOpen:
		output.Info("Order pending: %s %d x %s @ %s", order.Side, order.Quantity, order.Symbol, FormatPrice(order.Price))
		output.Printf("  Order ID: %s\n", order.ID)
		output.Printf("  Margin:   %s blocked\n", FormatIndianCurrency(order.MarginBlocked))
	default:
		output.Printf("Order %s: %s\n", order.ID, order.Status)
	}
}

func printRejection(output *Output, order *models.Order) {
	output.Error("✗ Order rejected: %s", order.RejectReason)
	if order.Shortfall > 0 {
		output.Printf("  Shortfall: %s\n", FormatIndianCurrency(order.Shortfall))
	}
	output.Printf("  Order ID: %s\n", order.ID)
}

func newCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if err := app.Engine.CancelOrder(cmd.Context(), args[0]); err != nil {
				var ise *errors.InvalidStateError
				if errors.As(err, &ise) {
					output.Error("Cannot cancel order in state %s", ise.From)
				} else {
					output.Error("Cancel failed: %v", err)
				}
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"order_id": args[0], "status": string(models.OrderCancelled)})
			}
			output.Success("✓ Order %s cancelled, margin released", args[0])
			return nil
		},
	}
}

func newExecuteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "execute ORDER_ID",
		Short: "Execute a pending order at the current market quote",
		Long: `Fill a pending LIMIT/SL order as if its trigger condition fired.

The fill prices at the current ask (BUY) or bid (SELL) and opens a
position atomically with the already-blocked margin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			pending, err := app.Engine.GetOrderByID(args[0])
			if err != nil {
				output.Error("Order not found: %s", args[0])
				return err
			}

			app.startFeed(ctx)
			quote, err := app.waitForQuote(ctx, pending.Token, 10*time.Second)
			if err != nil {
				output.Warning("No fresh quote for %s, filling at the order price", pending.Symbol)
			}

			order, err := app.Engine.ExecuteOrder(ctx, pending.ID, quote.BidPrice, quote.AskPrice)
			if err != nil {
				output.Error("Execute failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(order)
			}
			printOrderResult(output, order)
			return nil
		},
	}
}

func newCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close POSITION_ID",
		Short: "Close an open position at market",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if len(args) != 1 {
				return fmt.Errorf("expected exactly one position ID")
			}

			position, err := app.Engine.GetPositionByID(args[0])
			if err != nil {
				output.Error("Position not found: %s", args[0])
				return err
			}

			app.startFeed(ctx)
			quote, err := app.waitForQuote(ctx, position.Token, 10*time.Second)
			if err != nil {
				output.Warning("No fresh quote for %s, closing at last known price", position.Symbol)
			}

			realized, err := app.Engine.ClosePosition(ctx, position.ID, quote.BidPrice, quote.AskPrice)
			if err != nil {
				output.Error("Close failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"position_id":  position.ID,
					"symbol":       position.Symbol,
					"realized_pnl": realized,
				})
			}
			output.Success("✓ Closed %s", position.Symbol)
			output.Printf("  Realized P&L: %s\n", output.FormatPnL(realized))
			return nil
		},
	}
}

func newCloseAllCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closeall",
		Short: "Close all open positions",
		Long: `Close every open position at current market quotes.

With --profitable or --losing, closes only positions whose unrealized
P&L is currently positive or negative. Positions that cannot be closed
are reported and the rest of the batch still runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			profitable, _ := cmd.Flags().GetBool("profitable")
			losing, _ := cmd.Flags().GetBool("losing")
			if profitable && losing {
				return fmt.Errorf("--profitable and --losing are mutually exclusive")
			}

			app.startFeed(ctx)

			var results []engine.CloseResult
			switch {
			case profitable:
				results = app.Engine.CloseProfitable(ctx, app.UserID)
			case losing:
				results = app.Engine.CloseLosing(ctx, app.UserID)
			default:
				results = app.Engine.CloseAllPositions(ctx, app.UserID)
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			if len(results) == 0 {
				output.Info("No matching open positions")
				return nil
			}

			total := 0.0
			for _, r := range results {
				if r.Err != nil {
					output.Warning("✗ %s: %v", r.Symbol, r.Err)
					continue
				}
				total += r.RealizedPnL
				output.Printf("  ✓ %s  %s\n", r.Symbol, output.FormatPnL(r.RealizedPnL))
			}
			output.Println()
			output.Printf("Total realized: %s\n", output.FormatPnL(total))
			return nil
		},
	}

	cmd.Flags().Bool("profitable", false, "close only positions in profit")
	cmd.Flags().Bool("losing", false, "close only positions in loss")

	return cmd
}
