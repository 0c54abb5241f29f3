package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/models"
)

// addMarketCommands adds market data commands.
func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newCandlesCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
}

func newQuoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Show the latest quote for an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			symbol := strings.ToUpper(args[0])
			exchange, _ := cmd.Flags().GetString("exchange")

			inst, err := app.Refdata.Lookup(models.Exchange(strings.ToUpper(exchange)), symbol)
			if err != nil {
				output.Error("Unknown instrument %s on %s", symbol, exchange)
				return err
			}

			app.startFeed(ctx)
			quote, err := app.waitForQuote(ctx, inst.Token, 10*time.Second)
			if err != nil {
				output.Error("No market data for %s: %v", symbol, err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(quote)
			}

			output.Bold("%s (%s)", inst.Symbol, inst.Exchange)
			output.Printf("  LTP:     %s  %s\n", FormatPrice(quote.LTP), output.FormatPercent(quote.ChangePercent))
			output.Printf("  Bid/Ask: %s / %s\n", FormatPrice(quote.BidPrice), FormatPrice(quote.AskPrice))
			output.Printf("  OHLC:    O %s  H %s  L %s  C %s\n",
				FormatPrice(quote.Open), FormatPrice(quote.High), FormatPrice(quote.Low), FormatPrice(quote.Close))
			output.Printf("  Volume:  %s\n", FormatVolume(quote.Volume))
			output.Dim("  As of %s", FormatTime(quote.Timestamp))
			return nil
		},
	}

	cmd.Flags().StringP("exchange", "e", "NSE", "Exchange (NSE, BSE, NFO, MCX, CRYPTO)")

	return cmd
}

func newCandlesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candles SYMBOL",
		Short: "Show OHLC candles for an instrument",
		Long: `Show the most recent OHLC candles aggregated from the live feed.

The interval must be one of the configured aggregation intervals. The
newest (still-forming) candle is included as the last row.`,
		Example: `  papertrader candles RELIANCE --interval 60 --count 20
  papertrader candles NIFTYFUT -e NFO --interval 300`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			symbol := strings.ToUpper(args[0])
			exchange, _ := cmd.Flags().GetString("exchange")
			interval, _ := cmd.Flags().GetInt64("interval")
			count, _ := cmd.Flags().GetInt("count")
			wait, _ := cmd.Flags().GetDuration("wait")

			inst, err := app.Refdata.Lookup(models.Exchange(strings.ToUpper(exchange)), symbol)
			if err != nil {
				output.Error("Unknown instrument %s on %s", symbol, exchange)
				return err
			}

			app.startFeed(ctx)
			if wait > 0 {
				output.Info("Collecting ticks for %s...", wait)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			series, err := app.Candles.Candles(inst.Token, interval, count)
			if err != nil {
				output.Error("Candles unavailable: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(series)
			}

			if len(series) == 0 {
				output.Info("No candles yet for %s at %s", symbol, FormatInterval(interval))
				return nil
			}

			output.Bold("%s  %s candles", inst.Symbol, FormatInterval(interval))
			table := NewTable(output, "Time", "Open", "High", "Low", "Close", "Volume")
			for _, c := range series {
				table.AddRow(
					FormatTime(c.Timestamp),
					FormatPrice(c.Open),
					FormatPrice(c.High),
					FormatPrice(c.Low),
					FormatPrice(c.Close),
					FormatVolume(c.Volume),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringP("exchange", "e", "NSE", "Exchange (NSE, BSE, NFO, MCX, CRYPTO)")
	cmd.Flags().Int64P("interval", "i", 60, "Candle interval in seconds")
	cmd.Flags().IntP("count", "n", 20, "Number of candles")
	cmd.Flags().DurationP("wait", "w", 0, "Collect ticks for this long before rendering")

	return cmd
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [symbols...]",
		Short: "Watch live prices and open position P&L",
		Long: `Stream live quotes for the given symbols, refreshing in place.

Open positions on watched instruments show their mark-to-market P&L
updating with each tick. Press Ctrl+C to stop.`,
		Example: `  papertrader watch RELIANCE TCS INFY
  papertrader watch NIFTYFUT -e NFO`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			exchange, _ := cmd.Flags().GetString("exchange")
			refresh, _ := cmd.Flags().GetDuration("refresh")

			symbols := args
			if len(symbols) == 0 {
				symbols = []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK"}
				output.Info("Using default symbols")
			}

			instruments := make([]models.Instrument, 0, len(symbols))
			for _, s := range symbols {
				inst, err := app.Refdata.Lookup(models.Exchange(strings.ToUpper(exchange)), strings.ToUpper(s))
				if err != nil {
					output.Warning("Symbol %s not found", s)
					continue
				}
				instruments = append(instruments, inst)
			}
			if len(instruments) == 0 {
				return fmt.Errorf("no valid symbols")
			}

			app.startFeed(ctx)
			output.Dim("Press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			ticker := time.NewTicker(refresh)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					renderWatch(output, app, instruments)
				case <-sigCh:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().StringP("exchange", "e", "NSE", "Exchange (NSE, BSE, NFO, MCX, CRYPTO)")
	cmd.Flags().DurationP("refresh", "r", 500*time.Millisecond, "Screen refresh interval")

	return cmd
}

func renderWatch(output *Output, app *App, instruments []models.Instrument) {
	// Clear screen
	output.Printf("\033[H\033[2J")

	metrics := app.Hub.Metrics()
	output.Bold("Live Market")
	output.Printf("  %s | ticks %d processed, %d dropped\n\n",
		FormatTime(time.Now()), metrics.TicksProcessed, metrics.TicksDropped)

	table := NewTable(output, "Symbol", "LTP", "Change", "Bid", "Ask", "Volume")
	for _, inst := range instruments {
		quote, err := app.Cache.GetQuote(inst.Token)
		if err != nil {
			table.AddRow(inst.Symbol, "-", "-", "-", "-", "-")
			continue
		}
		table.AddRow(
			inst.Symbol,
			FormatPrice(quote.LTP),
			output.FormatPercent(quote.ChangePercent),
			FormatPrice(quote.BidPrice),
			FormatPrice(quote.AskPrice),
			FormatVolume(quote.Volume),
		)
	}
	table.Render()

	positions := app.Engine.ListOpenPositions(app.UserID)
	if len(positions) == 0 {
		return
	}

	output.Println()
	output.Bold("Open Positions")
	posTable := NewTable(output, "Symbol", "Side", "Qty", "Entry", "LTP", "P&L")
	totalPnL := 0.0
	for _, p := range positions {
		totalPnL += p.UnrealizedPnL
		posTable.AddRow(
			p.Symbol,
			string(p.Side),
			formatInt(p.Quantity),
			FormatPrice(p.EntryPrice),
			FormatPrice(p.CurrentPrice),
			output.FormatPnL(p.UnrealizedPnL),
		)
	}
	posTable.Render()
	output.Printf("\nTotal unrealized: %s\n", output.FormatPnL(totalPnL))
}
