package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"ti-portal/pkg/airdrop"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var airdropCmd = &cobra.Command{
	Use:   "airdrop",
	Short: "Check airdrop eligibility and register for the airdrop",
	Long: `Holders worth more than $1 in Ti, or holding more than 1000 Ti, can register
an address to receive the airdrop.

Examples:
  ti-portal airdrop check
  ti-portal airdrop register
  ti-portal airdrop register 0x1234...abcd`,
}

var airdropCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the connected wallet is eligible",
	Args:  cobra.NoArgs,
	Run:   runAirdropCheck,
}

var airdropRegisterCmd = &cobra.Command{
	Use:   "register [address]",
	Short: "Register an address for the airdrop",
	Long: `Run the full registration: eligibility check, social task verification
and submission. The destination defaults to the connected wallet.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAirdropRegister,
}

func init() {
	rootCmd.AddCommand(airdropCmd)
	airdropCmd.AddCommand(airdropCheckCmd)
	airdropCmd.AddCommand(airdropRegisterCmd)
}

type eligibilityOutput struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	Price          string `json:"price"`
	EstimatedValue string `json:"estimated_value"`
	Eligible       bool   `json:"eligible"`
}

// checkEligibility connects the wallet and runs the flow's check step
func checkEligibility(ctx context.Context, a *app, flow *airdrop.Flow) airdrop.Snapshot {
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	var (
		snap airdrop.Snapshot
		err  error
	)
	a.spin("Checking eligibility...", func() {
		snap, err = flow.Check(ctx, a.session.State())
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return snap
}

func runAirdropCheck(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	flow := airdrop.NewFlow(a.prices, nil, a.cfg.TaskDelay, a.log.Named("airdrop"))
	snap := checkEligibility(ctx, a, flow)

	out := eligibilityOutput{
		Address:        a.session.State().Address,
		Balance:        snap.Balance.String(),
		Price:          snap.Price.String(),
		EstimatedValue: snap.EstimatedValue.StringFixed(2),
		Eligible:       snap.State == airdrop.StateTaskPending,
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayEligibility(a, out)
}

func displayEligibility(a *app, out eligibilityOutput) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  AIRDROP ELIGIBILITY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Wallet:      %s\n", color.CyanString(out.Address))
	fmt.Printf("  Balance:     %s %s\n", out.Balance, a.cfg.Tokens.ProjectSymbol)
	fmt.Printf("  Price:       $%s\n", out.Price)
	fmt.Printf("  Value:       $%s\n", out.EstimatedValue)
	if out.Eligible {
		fmt.Printf("  Status:      %s\n", color.GreenString("ELIGIBLE"))
	} else {
		fmt.Printf("  Status:      %s\n", color.RedString("NOT ELIGIBLE"))
		fmt.Printf("\n  Hold more than $1 of %s, or more than 1000 %s, to qualify.\n",
			a.cfg.Tokens.ProjectSymbol, a.cfg.Tokens.ProjectSymbol)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runAirdropRegister(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, err := a.registry()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	flow := airdrop.NewFlow(a.prices, registry, a.cfg.TaskDelay, a.log.Named("airdrop"))
	snap := checkEligibility(ctx, a, flow)
	if snap.State == airdrop.StateFailed {
		printError(fmt.Errorf("wallet is not eligible: balance %s %s worth $%s",
			snap.Balance.String(), a.cfg.Tokens.ProjectSymbol, snap.EstimatedValue.StringFixed(2)))
		os.Exit(1)
	}

	if !a.json {
		color.Green("\nEligible! Estimated value: $%s", snap.EstimatedValue.StringFixed(2))
		fmt.Printf("Join the community to continue: %s\n", color.CyanString(a.site.Get().Telegram))
	}

	a.spin("Verifying task...", func() {
		err = flow.VerifyTask(ctx)
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if len(args) == 1 {
		flow.SetAddress(args[0])
	}

	entry, err := flow.Submit()
	duplicate := errors.Is(err, airdrop.ErrDuplicate)
	if err != nil && !duplicate {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"entry":     entry,
			"duplicate": duplicate,
		}, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if duplicate {
		color.Yellow("\n%s is already registered (since %s).\n",
			entry.Address, entry.RegisteredAt.Format("2006-01-02 15:04:05"))
		return
	}
	printSuccess("Registered for the airdrop!")
	fmt.Printf("  Address:   %s\n", color.CyanString(entry.Address))
	fmt.Printf("  Entry ID:  %s\n", color.HiBlackString(entry.ID))
	fmt.Printf("  Amount:    %s %s once distributed\n\n", a.site.Get().AirdropAmountPerUser.String(), a.cfg.Tokens.ProjectSymbol)
}
