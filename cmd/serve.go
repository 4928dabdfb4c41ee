package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ti-portal/pkg/httpapi"
	"ti-portal/pkg/metrics"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public site API",
	Long: `Serve the site API: settings, prices, quotes, airdrop registration and
the community chat with a live websocket stream. Prometheus metrics are
exposed on /metrics.

Examples:
  ti-portal serve
  ti-portal serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	defer a.close()

	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	registry, err := a.registry()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	room, err := a.room()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	m := metrics.New("ti_portal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep the price gauge in step with the feed
	prices := make(chan decimal.Decimal, 4)
	priceSub := a.prices.Subscribe(prices)
	defer priceSub.Unsubscribe()
	go func() {
		for {
			select {
			case p := <-prices:
				m.SetPrice(p)
			case <-priceSub.Err():
				return
			}
		}
	}()

	a.prices.Watch(ctx, a.cfg.PriceFeed.PollInterval, func() decimal.Decimal {
		return a.site.Get().TokenBasePrice
	})
	defer a.prices.Stop()

	h := httpapi.NewHandler(httpapi.Deps{
		Site:         a.site,
		Prices:       a.prices,
		Quotes:       a.quotes,
		Registry:     registry,
		Room:         room,
		Tokens:       a.cfg.TokenList(),
		NativeSymbol: a.cfg.Chain.NativeSymbol,
		Metrics:      m,
		Log:          a.log.Named("http"),
	})

	addr := a.cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(h, a.cfg.HTTP.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                         TI PORTAL API")
	fmt.Println(strings.Repeat("=", 70))
	color.Cyan("\n• Listening on %s", addr)
	color.Cyan("• Token price refreshed every %s", a.cfg.PriceFeed.PollInterval)
	color.Cyan("• Metrics on /metrics")
	color.Yellow("• Press Ctrl+C to stop gracefully\n")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	color.Yellow("\nReceived shutdown signal. Stopping server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("server shutdown", zap.Error(err))
	}

	color.Green("\n✓ Server stopped.\n")
}
