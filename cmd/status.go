package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connected wallet, its balances and the token price",
	Long: `Connect the configured wallet and show its Ti, USDT and BNB balances
together with the current Ti price.

Examples:
  ti-portal status
  ti-portal status --watch
  ti-portal status --watch --interval 10`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch balances continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 10, "Polling interval in seconds (when watching)")
}

type statusOutput struct {
	Wallet    types.WalletState `json:"wallet"`
	Price     string            `json:"price"`
	LivePrice bool              `json:"live_price"`
	ValueUSD  string            `json:"value_usd"`
}

func runStatus(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	if !watchStatus {
		showStatus(ctx, a)
		return
	}

	if a.json {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching %s\n", color.CyanString(a.session.State().Address))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	showStatus(ctx, a)
	for range ticker.C {
		a.session.Refresh(ctx)
		showStatus(ctx, a)
	}
}

func showStatus(ctx context.Context, a *app) {
	var (
		price decimal.Decimal
		live  bool
	)
	a.spin("Fetching price...", func() {
		price, live = a.price(ctx)
	})

	w := a.session.State()
	out := statusOutput{
		Wallet:    w,
		Price:     price.String(),
		LivePrice: live,
		ValueUSD:  w.BalanceToken.Mul(price).StringFixed(2),
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayStatus(a, out)
}

func displayStatus(a *app, out statusOutput) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     WALLET STATUS")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Address:   %s\n", color.CyanString(out.Wallet.Address))
	fmt.Printf("  Network:   %s (%s)\n", a.cfg.Chain.Name, a.cfg.Chain.ID)
	fmt.Printf("  %-9s  %s\n", a.cfg.Tokens.ProjectSymbol+":", color.YellowString(out.Wallet.BalanceToken.StringFixed(2)))
	fmt.Printf("  %-9s  %s\n", a.cfg.Tokens.StableSymbol+":", out.Wallet.BalanceStable.StringFixed(2))
	fmt.Printf("  %-9s  %s\n", a.cfg.Chain.NativeSymbol+":", out.Wallet.BalanceNative.StringFixed(4))

	source := "live"
	if !out.LivePrice {
		source = "base price"
	}
	fmt.Printf("\n  Price:     $%s %s\n", out.Price, color.HiBlackString("("+source+")"))
	fmt.Printf("  Value:     $%s\n", out.ValueUSD)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
