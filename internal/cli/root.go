package cli

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"papertrader/internal/candles"
	"papertrader/internal/config"
	"papertrader/internal/engine"
	"papertrader/internal/errors"
	"papertrader/internal/feed"
	"papertrader/internal/logging"
	"papertrader/internal/margin"
	"papertrader/internal/models"
	"papertrader/internal/refdata"
	"papertrader/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   store.DataStore
	Refdata *refdata.Service
	Cache   *feed.Cache
	Hub     *feed.Hub
	Candles *candles.Aggregator
	Engine  *engine.Engine
	UserID  string

	feedOnce sync.Once
	feedStop context.CancelFunc
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		UserID: "local",
	}

	// Initialize SQLite store
	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, running without persistence")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Store.DBPath).Msg("SQLite store initialized")
	}

	// Instrument universe
	app.Refdata = refdata.NewService()
	if err := app.Refdata.LoadDefaults(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load instrument universe")
	}

	// Market data pipeline
	app.Cache = feed.NewCache()
	app.Hub = feed.NewHubWithConfig(feed.HubConfig{
		BufferSize: cfg.Feed.BufferSize,
		Shards:     cfg.Feed.Shards,
	})

	candleOpts := []candles.Option{candles.WithMaxHistory(cfg.Candles.MaxHistory)}
	if app.Store != nil {
		candleOpts = append(candleOpts, candles.WithSealHook(func(c models.Candle) {
			if err := app.Store.SaveCandle(context.Background(), c); err != nil {
				logger.Warn().Err(err).Uint32("token", c.Token).Msg("Failed to persist candle")
			}
		}))
	}
	app.Candles = candles.NewAggregator(cfg.Candles.Intervals, candleOpts...)

	// Trading engine
	accounts := margin.NewAccounts(cfg.Trading.InitialBalance)
	marginEngine := margin.NewEngine(accounts, cfg.Margin.Rates, cfg.Trading.AllowedLeverage)
	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if app.Store != nil {
		engineOpts = append(engineOpts, engine.WithStore(app.Store))
	}
	app.Engine = engine.NewEngine(app.Refdata, app.Cache, marginEngine, engineOpts...)

	// Quote cache first so downstream consumers read the tick they were
	// woken by, then candles, then position revaluation.
	app.Hub.RegisterConsumer(feed.ConsumerFunc(app.Cache.Update))
	app.Hub.RegisterConsumer(app.Candles)
	app.Hub.RegisterConsumer(app.Engine)

	rootCmd := &cobra.Command{
		Use:   "papertrader",
		Short: "Paper trading simulator for the Indian stock market",
		Long: `Papertrader is a broker simulator for practicing leveraged trading
without real money.

It streams live market quotes, maintains OHLC candles, and runs a full
order/position lifecycle with margin blocking and mark-to-market P&L.

Use 'papertrader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/papertrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)

	return rootCmd
}

// startFeed starts the tick pipeline and the websocket source. Idempotent.
func (a *App) startFeed(ctx context.Context) {
	a.feedOnce.Do(func() {
		feedCtx, cancel := context.WithCancel(ctx)
		a.feedStop = cancel
		a.Hub.Start(feedCtx)

		source := feed.NewWSSource(feed.WSConfig{URL: a.Config.Feed.WSURL}, a.Hub, a.Logger)
		go func() {
			if err := source.Run(feedCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("Feed source stopped")
			}
		}()
	})
}

// waitForQuote blocks until the cache holds a quote for the token.
func (a *App) waitForQuote(ctx context.Context, token uint32, timeout time.Duration) (models.Quote, error) {
	deadline := time.Now().Add(timeout)
	for {
		quote, err := a.Cache.GetQuote(token)
		if err == nil {
			return quote, nil
		}
		if time.Now().After(deadline) {
			return models.Quote{}, err
		}
		select {
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newInstrumentsCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Papertrader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading Configuration")
	output.Printf("  Initial Balance: %s\n", FormatIndianCurrency(cfg.Trading.InitialBalance))
	output.Printf("  Default Product: %s\n", cfg.Trading.DefaultProduct)
	output.Printf("  Leverage:        %v\n", cfg.Trading.AllowedLeverage)
	output.Println()

	output.Bold("Candle Configuration")
	output.Printf("  Intervals:   %v\n", cfg.Candles.Intervals)
	output.Printf("  Max History: %d\n", cfg.Candles.MaxHistory)
	output.Println()

	output.Bold("Feed Configuration")
	output.Printf("  URL:         %s\n", cfg.Feed.WSURL)
	output.Printf("  Buffer Size: %d\n", cfg.Feed.BufferSize)
	output.Printf("  Shards:      %d\n", cfg.Feed.Shards)
	output.Println()

	output.Bold("Store Configuration")
	output.Printf("  DB Path: %s\n", cfg.Store.DBPath)
}

func newInstrumentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List the tradable instrument universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instruments := app.Refdata.Instruments()
			if output.IsJSON() {
				return output.JSON(instruments)
			}

			table := NewTable(output, "Token", "Symbol", "Exchange", "Segment", "Lot Size")
			for _, inst := range instruments {
				table.AddRow(
					formatToken(inst.Token),
					inst.Symbol,
					string(inst.Exchange),
					string(inst.Segment),
					formatInt(inst.LotSize),
				)
			}
			table.Render()
			return nil
		},
	}
}
