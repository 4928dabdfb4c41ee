package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"ti-portal/config"
	"ti-portal/pkg/airdrop"
	"ti-portal/pkg/chain"
	"ti-portal/pkg/chat"
	"ti-portal/pkg/pricefeed"
	"ti-portal/pkg/quote"
	"ti-portal/pkg/site"
	"ti-portal/pkg/store"
	"ti-portal/pkg/wallet"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is one CLI session: configuration, stores and the chain client
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
	json  bool

	provider *chain.KeyProvider
	reader   *chain.ReadProvider
	client   *chain.Client
	quotes   *quote.Engine
	session  *wallet.Session
	prices   *pricefeed.Client
	site     *site.Store
}

// newApp loads configuration and the site store. Without a signer key the
// chain client runs over a read-only node connection.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := newLogger(cmd)
	jsonOutput, _ := cmd.Flags().GetBool("json")
	autoYes, _ := cmd.Flags().GetBool("yes")

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	siteStore, err := site.Load(st, cfg.Site, log.Named("site"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		store: st,
		json:  jsonOutput,
		site:  siteStore,
		prices: pricefeed.New(cfg.PriceFeed.URL, cfg.ProjectToken().Address,
			pricefeed.WithHTTPClient(&http.Client{Timeout: cfg.PriceFeed.Timeout}),
			pricefeed.WithLogger(log.Named("price"))),
	}

	var provider chain.Provider
	if cfg.Wallet.PrivateKey != "" {
		kp, err := chain.NewKeyProvider(cfg.Wallet.PrivateKey, cfg.Chain.RPCURL,
			chain.WithApprover(walletApprover(autoYes)),
			chain.WithKeyLogger(log.Named("wallet")))
		if err != nil {
			return nil, err
		}
		a.provider = kp
		provider = kp
	} else {
		rp, err := chain.NewReadProvider(cfg.Chain.RPCURL, chain.WithReadLogger(log.Named("rpc")))
		if err != nil {
			return nil, err
		}
		a.reader = rp
		provider = rp
	}

	a.client = chain.NewClient(provider, cfg.ChainParams(), common.HexToAddress(cfg.Tokens.Router),
		chain.WithLogger(log.Named("chain")),
		chain.WithDetectRetry(cfg.Wallet.DetectRetries, cfg.Wallet.DetectInterval))
	a.quotes = quote.NewEngine(a.client, cfg.WrappedNative(), log.Named("quote"))
	a.session = wallet.NewSession(a.client, wallet.Tokens{
		Project: cfg.ProjectToken(),
		Stable:  cfg.StableToken(),
	}, log.Named("session"))

	return a, nil
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
	if a.reader != nil {
		a.reader.Close()
	}
	_ = a.log.Sync()
}

// spin runs fn behind a spinner unless JSON output is requested
func (a *app) spin(suffix string, fn func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " " + suffix
		s.Start()
	}
	fn()
	if !a.json {
		s.Stop()
	}
}

// connect authorizes the wallet and loads balances
func (a *app) connect(ctx context.Context) error {
	if a.provider == nil {
		return fmt.Errorf("%w. Set TI_PORTAL_WALLET_PRIVATE_KEY", chain.ErrWalletNotFound)
	}

	var err error
	a.spin("Connecting wallet...", func() {
		_, err = a.session.Connect(ctx)
	})
	return err
}

// price returns the live token price with the site base price as fallback
func (a *app) price(ctx context.Context) (p decimal.Decimal, live bool) {
	fallback := a.site.Get().TokenBasePrice
	current := a.prices.Latest(ctx, fallback)
	return current, !current.Equal(fallback)
}

// registry opens the airdrop registry
func (a *app) registry() (*airdrop.Registry, error) {
	return airdrop.NewRegistry(a.store, a.log.Named("airdrop"))
}

// room opens the chat room
func (a *app) room() (*chat.Room, error) {
	return chat.Open(a.store, a.log.Named("chat"))
}

func mustApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}
