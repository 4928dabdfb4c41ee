package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"ti-portal/pkg/swap"
	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var slippageFlag string

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Buy or sell Ti through the router",
	Long: `Swap between Ti and USDT or BNB using the configured wallet.

One side of the swap must be Ti. Spending a token that the router may not
move yet asks for an approval first, then submits the swap.

Examples:
  # Buy Ti with USDT
  ti-portal swap 10 USDT to Ti

  # Sell Ti for BNB with 1% slippage
  ti-portal swap 5000 Ti to BNB --slippage 1

  # Approve every wallet prompt
  ti-portal swap 0.1 BNB to Ti --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&slippageFlag, "slippage", "", "Slippage tolerance in percent (default from config)")
}

func runSwap(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	autoYes, _ := cmd.Flags().GetBool("yes")

	req, in, out, err := resolvePair(a, args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	project := a.cfg.ProjectToken()
	if !in.Is(project) && !out.Is(project) {
		printError(fmt.Errorf("one side of the swap must be %s", project.Symbol))
		os.Exit(1)
	}

	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	o, err := swap.New(swap.Config{
		Token:     project,
		Bases:     types.TokenList{a.cfg.StableToken(), a.cfg.NativeToken()},
		Slippage:  a.cfg.Swap.Slippage,
		Debounce:  a.cfg.Swap.Debounce,
		Deadline:  a.cfg.Swap.Deadline,
		NativeUSD: a.cfg.NativeUSDPrice,
	}, a.client, a.quotes, a.session, a.log.Named("swap"))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := prepareSwap(o, req.Amount, in, out, project); err != nil {
		printError(err)
		os.Exit(1)
	}

	// The form is filled; price it once now instead of after the debounce
	o.Stop()
	a.spin("Fetching quote...", func() {
		o.Refresh(ctx)
	})

	snap := o.Snapshot()
	if !snap.Quote.Available() {
		printError(errors.New("no route available for this pair"))
		os.Exit(1)
	}

	if a.json {
		if !autoYes {
			output := map[string]interface{}{
				"amount":       snap.Amount,
				"from":         snap.From.Symbol,
				"to":           snap.To.Symbol,
				"amount_out":   snap.Quote.AmountOut,
				"min_received": snap.MinReceived,
				"slippage":     snap.Slippage.String(),
				"gas":          snap.Gas,
				"status":       "quote_generated",
			}
			jsonData, _ := json.MarshalIndent(output, "", "  ")
			fmt.Println(string(jsonData))
			return
		}
	} else {
		displaySwapQuote(a, snap)
		if !autoYes && !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if err := o.Initiate(); err != nil {
		printError(err)
		os.Exit(1)
	}

	updates := make(chan swap.Snapshot, 16)
	sub := o.Subscribe(updates)
	done := make(chan struct{})
	go func() {
		defer close(done)
		followStages(updates, a.json)
	}()

	result, err := o.Confirm(ctx)
	sub.Unsubscribe()
	close(updates)
	<-done

	if err != nil {
		alert := o.Snapshot().Alert
		if alert != nil && alert.Silent() {
			color.Yellow("\n%s\n", alert.Message)
			os.Exit(1)
		}
		if alert != nil {
			printError(errors.New(alert.Message))
		} else {
			printError(err)
		}
		os.Exit(1)
	}

	wallet := a.session.Refresh(ctx)

	if a.json {
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"result": result,
			"wallet": wallet,
		}, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displaySwapResult(a, result, snap)
}

// prepareSwap fills the swap form for the in -> out pair
func prepareSwap(o *swap.Orchestrator, amount string, in, out, project types.Token) error {
	base := in
	if in.Is(project) {
		base = out
		if err := o.ToggleDirection(); err != nil {
			return err
		}
	}
	if err := o.SelectBase(base.Symbol); err != nil {
		return err
	}
	if slippageFlag != "" {
		s, err := decimal.NewFromString(slippageFlag)
		if err != nil {
			return fmt.Errorf("invalid slippage %q", slippageFlag)
		}
		if err := o.SetSlippage(s); err != nil {
			return err
		}
	}
	return o.SetAmount(amount)
}

func followStages(updates <-chan swap.Snapshot, quiet bool) {
	last := swap.StageIdle
	for snap := range updates {
		if snap.Stage == last || quiet {
			continue
		}
		last = snap.Stage
		switch snap.Stage {
		case swap.StageChecking:
			fmt.Println(color.HiBlackString("\n  Checking balances..."))
		case swap.StageApproving:
			fmt.Printf("  Approving %s...\n", snap.From.Symbol)
		case swap.StageSwapping:
			fmt.Println("  Swapping...")
		}
	}
}

func displaySwapQuote(a *app, snap swap.Snapshot) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	route := a.quotes.Symbols(snap.Quote.Path, a.cfg.TokenList(), a.cfg.Chain.NativeSymbol)

	fmt.Printf("\n  From:           %s %s\n", snap.Amount, color.YellowString(snap.From.Symbol))
	fmt.Printf("  To:             ~%s %s\n", snap.Quote.AmountOut, color.YellowString(snap.To.Symbol))
	fmt.Printf("  Route:          %s\n", color.HiBlackString(strings.Join(route, " -> ")))
	fmt.Printf("  Slippage:       %s%%\n", snap.Slippage.String())
	if snap.MinReceived != "" {
		fmt.Printf("  Min. received:  %s %s\n", snap.MinReceived, snap.To.Symbol)
	}
	if snap.Gas != nil {
		gas := fmt.Sprintf("%s %s (~$%s)", snap.Gas.NativeString(), a.cfg.Chain.NativeSymbol, snap.Gas.USDString())
		if snap.Gas.Placeholder {
			gas += color.HiBlackString(" estimate")
		}
		fmt.Printf("  Network fee:    %s\n", gas)
	}
	if snap.HighRisk {
		color.Red("\n  Slippage above 5%% risks a front-run trade.")
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displaySwapResult(a *app, result *swap.Result, snap swap.Snapshot) {
	printSuccess("Swap completed!")
	if result.Approved {
		fmt.Printf("  Approved:   %s\n", snap.From.Symbol)
	}
	fmt.Printf("  Sent:       %s %s\n", result.AmountIn, snap.From.Symbol)
	fmt.Printf("  Received:   ~%s %s (min. %s)\n", result.AmountOut, snap.To.Symbol, result.MinimumOut)
	fmt.Printf("  Tx:         %s\n", color.CyanString(strings.TrimRight(a.cfg.Chain.ExplorerURL, "/")+"/tx/"+result.TxHash))

	w := a.session.State()
	fmt.Printf("\n  Balances:   %s %s, %s %s, %s %s\n\n",
		w.BalanceToken.StringFixed(2), a.cfg.Tokens.ProjectSymbol,
		w.BalanceStable.StringFixed(2), a.cfg.Tokens.StableSymbol,
		w.BalanceNative.StringFixed(4), a.cfg.Chain.NativeSymbol)
}
