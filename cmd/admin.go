package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"ti-portal/pkg/airdrop"
	"ti-portal/pkg/chain"
	"ti-portal/pkg/disburse"
	"ti-portal/pkg/site"
	"ti-portal/pkg/types"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	adminUser      string
	adminPassword  string
	adminAmount    string
	adminStatus    string
	adminExportOut string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator console: site settings and airdrop disbursement",
	Long: `Operator commands. Every subcommand asks for the operator credentials
unless --password is given.

Examples:
  ti-portal admin login
  ti-portal admin config show
  ti-portal admin config set token_base_price 0.15
  ti-portal admin list --status Pending
  ti-portal admin scan
  ti-portal admin send <entry-id>
  ti-portal admin distribute
  ti-portal admin export --out airdrop.csv`,
}

var adminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check the operator credentials",
	Args:  cobra.NoArgs,
	Run:   runAdminLogin,
}

var adminConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the site settings",
}

var adminConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the site settings",
	Args:  cobra.NoArgs,
	Run:   runAdminConfigShow,
}

var adminConfigSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one site setting",
	Long: `Change one site setting. Keys:
  ` + strings.Join(site.Keys(), "\n  "),
	Args: cobra.ExactArgs(2),
	Run:  runAdminConfigSet,
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List airdrop registrations, newest first",
	Args:  cobra.NoArgs,
	Run:   runAdminList,
}

var adminScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read the current token balance of every registered address",
	Args:  cobra.NoArgs,
	Run:   runAdminScan,
}

var adminSendCmd = &cobra.Command{
	Use:   "send <entry-id>",
	Short: "Send the airdrop to one registered address",
	Args:  cobra.ExactArgs(1),
	Run:   runAdminSend,
}

var adminDistributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Send the airdrop to every pending address, one at a time",
	Args:  cobra.NoArgs,
	Run:   runAdminDistribute,
}

var adminExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the registry as CSV",
	Args:  cobra.NoArgs,
	Run:   runAdminExport,
}

func init() {
	rootCmd.AddCommand(adminCmd)

	adminCmd.PersistentFlags().StringVar(&adminUser, "user", "", "Operator username (default from site settings)")
	adminCmd.PersistentFlags().StringVar(&adminPassword, "password", "", "Operator password (prompted when empty)")

	adminConfigCmd.AddCommand(adminConfigShowCmd)
	adminConfigCmd.AddCommand(adminConfigSetCmd)

	adminListCmd.Flags().StringVar(&adminStatus, "status", "", "Filter by status (Pending, Distributed)")
	adminSendCmd.Flags().StringVar(&adminAmount, "amount", "", "Amount to send (default: airdrop amount per user)")
	adminDistributeCmd.Flags().StringVar(&adminAmount, "amount", "", "Amount per address (default: airdrop amount per user)")
	adminExportCmd.Flags().StringVarP(&adminExportOut, "out", "o", "", "Output file (default: stdout)")

	adminCmd.AddCommand(adminLoginCmd)
	adminCmd.AddCommand(adminConfigCmd)
	adminCmd.AddCommand(adminListCmd)
	adminCmd.AddCommand(adminScanCmd)
	adminCmd.AddCommand(adminSendCmd)
	adminCmd.AddCommand(adminDistributeCmd)
	adminCmd.AddCommand(adminExportCmd)
}

// mustOperator builds the app and checks the operator credentials
func mustOperator(cmd *cobra.Command) *app {
	a := mustApp(cmd)

	user := adminUser
	if user == "" {
		user = a.site.Get().AdminUser
	}
	pass := adminPassword
	if pass == "" {
		var err error
		if pass, err = readPassword(fmt.Sprintf("Password for %s: ", user)); err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	if err := a.site.Authenticate(user, pass); err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}

// mustEngine connects the operator wallet and builds the disbursement engine
func mustEngine(ctx context.Context, cmd *cobra.Command, a *app, registry *airdrop.Registry) *disburse.Engine {
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
	autoYes, _ := cmd.Flags().GetBool("yes")
	return disburse.New(a.client, registry, a.client, terminalPrompter{autoYes: autoYes}, a.cfg.ProjectToken(),
		disburse.WithScanRate(a.cfg.ScanRate),
		disburse.WithLogger(a.log.Named("disburse")))
}

func mustRegistry(a *app) *airdrop.Registry {
	registry, err := a.registry()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return registry
}

func airdropAmount(a *app) decimal.Decimal {
	if adminAmount == "" {
		return a.site.Get().AirdropAmountPerUser
	}
	d, err := decimal.NewFromString(adminAmount)
	if err != nil || !d.IsPositive() {
		printError(fmt.Errorf("invalid amount %q", adminAmount))
		os.Exit(1)
	}
	return d
}

func runAdminLogin(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()
	printSuccess("Logged in as " + a.site.Get().AdminUser)
}

func runAdminConfigShow(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	cfg := a.site.Get()
	if a.json {
		jsonData, _ := json.MarshalIndent(cfg.Public(), "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displaySiteConfig(cfg)
}

func displaySiteConfig(cfg types.SiteConfig) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          SITE SETTINGS")
	fmt.Println(strings.Repeat("=", 70))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n  hero_title_prefix\t%s\n", cfg.HeroTitlePrefix)
	fmt.Fprintf(w, "  hero_title_suffix\t%s\n", cfg.HeroTitleSuffix)
	fmt.Fprintf(w, "  hero_subtitle\t%s\n", cfg.HeroSubtitle)
	fmt.Fprintf(w, "  token_base_price\t%s\n", cfg.TokenBasePrice.String())
	fmt.Fprintf(w, "  airdrop_amount_per_user\t%s\n", cfg.AirdropAmountPerUser.String())
	fmt.Fprintf(w, "  telegram\t%s\n", cfg.Telegram)
	fmt.Fprintf(w, "  twitter\t%s\n", cfg.Twitter)
	fmt.Fprintf(w, "  admin_user\t%s\n", cfg.AdminUser)
	w.Flush()

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runAdminConfigSet(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	key, value := args[0], args[1]
	var setErr error
	cfg, err := a.site.Update(func(c *types.SiteConfig) {
		setErr = site.Set(c, key, value)
	})
	if setErr != nil {
		printError(setErr)
		os.Exit(1)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(cfg.Public(), "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	printSuccess(fmt.Sprintf("✓ %s updated", key))
}

func runAdminList(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	entries := mustRegistry(a).List()
	if adminStatus != "" {
		var filtered []types.AirdropEntry
		for _, e := range entries {
			if strings.EqualFold(string(e.Status), adminStatus) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(entries) == 0 {
		color.Yellow("No airdrop registrations found.\n")
		return
	}
	displayEntries(a, entries)
}

func displayEntries(a *app, entries []types.AirdropEntry) {
	fmt.Println("\n" + strings.Repeat("=", 120))
	color.Green("                                           AIRDROP REGISTRY")
	fmt.Println(strings.Repeat("=", 120))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tADDRESS\tREGISTERED\tSTATUS\tBALANCE")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	pending := 0
	for _, e := range entries {
		balance := "-"
		if e.CurrentBalance != nil {
			balance = e.CurrentBalance.StringFixed(2) + " " + a.cfg.Tokens.ProjectSymbol
		}
		if e.IsPending() {
			pending++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Address, e.RegisteredAt.Local().Format("2006-01-02 15:04:05"), entryStatusColor(e.Status), balance)
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 120))
	fmt.Printf("\nTotal: %d registrations, %d pending\n\n", len(entries), pending)
}

func entryStatusColor(status types.AirdropStatus) string {
	switch status {
	case types.AirdropPending:
		return color.YellowString(string(status))
	case types.AirdropDistributed:
		return color.GreenString(string(status))
	default:
		return string(status)
	}
}

func runAdminScan(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry := mustRegistry(a)
	engine := mustEngine(ctx, cmd, a, registry)

	var (
		report disburse.ScanReport
		err    error
	)
	a.spin(fmt.Sprintf("Scanning %d addresses...", len(registry.List())), func() {
		report, err = engine.ScanBalances(ctx, registry.List())
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	printSuccess(fmt.Sprintf("✓ Scanned %d addresses", report.Scanned))
	if report.Failed > 0 {
		color.Yellow("%d balance reads failed; run with --verbose for details.\n", report.Failed)
	}
}

func runAdminSend(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry := mustRegistry(a)
	entry, err := registry.Get(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	amount := airdropAmount(a)
	engine := mustEngine(ctx, cmd, a, registry)

	if err := engine.SendOne(ctx, entry, amount); err != nil {
		if errors.Is(err, disburse.ErrCancelled) {
			fmt.Println("\nTransfer cancelled.")
			return
		}
		printError(errors.New(chain.RevertReason(err)))
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("✓ Sent %s %s to %s", amount, a.cfg.Tokens.ProjectSymbol, entry.Address))
}

func runAdminDistribute(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry := mustRegistry(a)
	amount := airdropAmount(a)
	engine := mustEngine(ctx, cmd, a, registry)

	report, err := engine.DistributeAllPending(ctx, registry.List(), amount)
	switch {
	case errors.Is(err, disburse.ErrNothingPending):
		color.Yellow("\nNo pending airdrop entries.\n")
		return
	case errors.Is(err, disburse.ErrCancelled):
		fmt.Println("\nDistribution cancelled.")
		return
	case err != nil:
		printError(err)
		os.Exit(1)
	}

	if a.json {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayReport(report)
}

func displayReport(report disburse.Report) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       DISTRIBUTION REPORT")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Pending:    %d\n", report.Total)
	fmt.Printf("  Sent:       %s\n", color.GreenString("%d", report.Succeeded))
	if len(report.Failures) > 0 {
		fmt.Printf("  Failed:     %s\n", color.RedString("%d", len(report.Failures)))
		for _, f := range report.Failures {
			fmt.Printf("    %s  %s\n", f.Entry.Address, color.HiBlackString(f.Reason))
		}
	}
	if report.Aborted {
		color.Yellow("\n  Stopped by operator; remaining entries are still pending.")
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runAdminExport(cmd *cobra.Command, args []string) {
	a := mustOperator(cmd)
	defer a.close()

	registry := mustRegistry(a)

	out := os.Stdout
	if adminExportOut != "" {
		f, err := os.Create(adminExportOut)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := registry.ExportCSV(out); err != nil {
		printError(err)
		os.Exit(1)
	}
	if adminExportOut != "" {
		printSuccess(fmt.Sprintf("✓ Exported %d entries to %s", len(registry.List()), adminExportOut))
	}
}
