package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List the tradable assets",
	Long: `List the assets the portal can quote and swap, with their contract
addresses and on-chain decimals.

Examples:
  ti-portal list-tokens
  ti-portal list-tokens --symbol usdt`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var tokens types.TokenList
	for _, t := range a.cfg.TokenList() {
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol)) {
			continue
		}
		tokens = append(tokens, t)
	}

	// Decimals need the RPC node; without a signer the configured value stands
	a.spin("Reading token decimals...", func() {
		for i, t := range tokens {
			if d, err := a.quotes.Decimals(ctx, t.Address); err == nil {
				tokens[i].Decimals = d
			}
		}
	})

	if a.json {
		jsonData, _ := json.MarshalIndent(tokens, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayTokens(tokens)
}

func displayTokens(tokens types.TokenList) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                         SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 70))

	for _, t := range tokens {
		address := t.Address.Hex()
		if t.IsNative() {
			address = "native"
		}
		decimals := "?"
		if t.Decimals > 0 {
			decimals = fmt.Sprintf("%2d", t.Decimals)
		}
		fmt.Printf("  %-10s  %s decimals  %s\n",
			color.YellowString(t.Symbol),
			decimals,
			color.HiBlackString(address))
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
