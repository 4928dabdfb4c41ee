package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"ti-portal/pkg/parser"
	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Price a swap on the router without sending anything",
	Long: `Ask the router how much of the destination token an amount would buy.
Pairs that do not involve BNB are routed through WBNB.

Examples:
  ti-portal quote 10 USDT to Ti
  ti-portal quote 5000 Ti to BNB
  ti-portal quote 0.1 BNB to Ti --json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

type quoteOutput struct {
	Amount    string   `json:"amount"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	AmountOut string   `json:"amount_out"`
	Route     []string `json:"route"`
	Path      string   `json:"path"`
	Available bool     `json:"available"`
}

// resolvePair parses a swap command and maps its symbols onto configured tokens
func resolvePair(a *app, args []string) (*types.SwapRequest, types.Token, types.Token, error) {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, types.Token{}, types.Token{}, err
	}
	req.SourceToken = parser.NormalizeTokenSymbol(req.SourceToken)
	req.DestToken = parser.NormalizeTokenSymbol(req.DestToken)
	if err := parser.ValidateSwapRequest(req); err != nil {
		return nil, types.Token{}, types.Token{}, err
	}

	tokens := a.cfg.TokenList()
	in, ok := tokens.BySymbol(req.SourceToken)
	if !ok {
		return nil, types.Token{}, types.Token{}, fmt.Errorf("unknown token %s (try: ti-portal list-tokens)", req.SourceToken)
	}
	out, ok := tokens.BySymbol(req.DestToken)
	if !ok {
		return nil, types.Token{}, types.Token{}, fmt.Errorf("unknown token %s (try: ti-portal list-tokens)", req.DestToken)
	}
	return req, in, out, nil
}

func runQuote(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, in, out, err := resolvePair(a, args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var q types.SwapQuote
	a.spin("Fetching quote...", func() {
		q = a.quotes.Quote(ctx, req.Amount, in, out)
	})

	result := quoteOutput{
		Amount:    req.Amount,
		From:      in.Symbol,
		To:        out.Symbol,
		AmountOut: q.AmountOut,
		Route:     a.quotes.Symbols(q.Path, a.cfg.TokenList(), a.cfg.Chain.NativeSymbol),
		Path:      q.PathString(),
		Available: q.Available(),
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if !result.Available {
		color.Yellow("\nNo route available for %s -> %s.", in.Symbol, out.Symbol)
		if a.provider == nil {
			fmt.Printf("Quotes are read from %s. Check TI_PORTAL_CHAIN_RPC_URL.\n", a.cfg.Chain.RPCURL)
		}
		fmt.Println()
		return
	}
	displayQuote(result)
}

func displayQuote(q quoteOutput) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:    %s %s\n", q.Amount, color.YellowString(q.From))
	fmt.Printf("  To:      ~%s %s\n", q.AmountOut, color.YellowString(q.To))
	fmt.Printf("  Route:   %s\n", color.HiBlackString(strings.Join(q.Route, " -> ")))
	if q.Path != "" {
		fmt.Printf("  Path:    %s\n", color.HiBlackString(q.Path))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
