package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rkulagin/autolot/broker/tinvest"
	"github.com/rkulagin/autolot/config"
	"github.com/rkulagin/autolot/dispatch"
	"github.com/rkulagin/autolot/instrument"
	"github.com/rkulagin/autolot/internal/dbg"
	"github.com/rkulagin/autolot/pkg/id"
	"github.com/rkulagin/autolot/pricing"
	"github.com/spf13/cobra"
)

const (
	modePlaceLimitOrders = 1
	modeCancelAllOrders  = 2
	modeMarketBuy        = 3
)

var rootCmd = &cobra.Command{
	Use:   "autolot",
	Short: "Place budgeted buy orders for a fixed portfolio allocation",
	Long: `Autolot works through a fixed ticker-to-budget allocation table and
places buy orders via the T-Invest API.

Modes:
  1  place a limit buy per entry at a discounted (or fixed) price
  2  cancel every open order on the account
  3  place a market buy per entry and confirm the execution price

Example:
  autolot --mode 1 --config portfolio.yaml`,
	SilenceUsage: true,
	RunE:         runRoot,
}

var (
	mode       int
	configPath string
	logFile    string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().IntVarP(&mode, "mode", "m", 0, "run mode: 1=limit orders, 2=cancel all, 3=market buy (required)")
	rootCmd.Flags().StringVarP(&configPath, "config", "f", "", "path to config file (YAML or JSON); built-in table when omitted")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write the run log to this file (default autolot-<run id>.log; 'none' disables the file)")
	rootCmd.MarkFlagRequired("mode")
}

// selectLogFile resolves the --log-file flag: empty means a fresh
// run-scoped file named by the run ID, "none" disables the file sink.
func selectLogFile(flag, runID string) string {
	switch flag {
	case "":
		return "autolot-" + runID + ".log"
	case "none":
		return ""
	}
	return flag
}

func runRoot(cmd *cobra.Command, args []string) error {
	if mode != modePlaceLimitOrders && mode != modeCancelAllOrders && mode != modeMarketBuy {
		return fmt.Errorf("invalid --mode %d (want 1, 2 or 3)", mode)
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	runID := id.New()

	logger, err := dbg.NewLogger(selectLogFile(logFile, runID))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infof("run %s: mode %d, env %s", runID, mode, cfg.Broker.Env)

	client := tinvest.NewClient(cfg.Broker.Token, cfg.Broker.Env == "sandbox")
	ctx := context.Background()

	accountID := cfg.Broker.AccountID
	if accountID == "" {
		accounts, err := client.GetAccounts(ctx)
		if err != nil {
			return fmt.Errorf("get accounts: %w", err)
		}
		if len(accounts) == 0 {
			return errors.New("no accounts available for this token")
		}
		accountID = accounts[0].ID
	}
	sugar.Infof("using account %s", accountID)

	delay, err := cfg.Confirm.ParseDelay()
	if err != nil {
		return fmt.Errorf("confirm.delay: %w", err)
	}
	confirm := dispatch.ConfirmPolicy{
		MaxAttempts: cfg.Confirm.MaxAttempts,
		Delay:       delay,
	}

	d := dispatch.New(client, instrument.NewResolver(client), pricing.NewEngine(client),
		accountID, cfg.Allocations, sugar, confirm, runID)

	switch mode {
	case modePlaceLimitOrders:
		report := d.PlaceLimitOrders(ctx)
		sugar.Infof("run %s done: %d of %d orders placed, %d failed, %.2f committed",
			runID, report.Placed(), len(report.Results), report.Failed(), report.TotalSpent())
	case modeCancelAllOrders:
		report, err := d.CancelAllOrders(ctx)
		if err != nil {
			return fmt.Errorf("list open orders: %w", err)
		}
		sugar.Infof("run %s done: %d of %d orders cancelled, %d failed",
			runID, report.Cancelled, report.Total, report.Failed)
	case modeMarketBuy:
		report := d.MarketBuyAll(ctx)
		sugar.Infof("run %s done: %d of %d orders placed, %d failed, %.2f spent",
			runID, report.Placed(), len(report.Results), report.Failed(), report.TotalSpent())
	}
	return nil
}
