package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/site"
	"ti-portal/pkg/store"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ChainConfig describes the target network
type ChainConfig struct {
	ID           string
	Name         string
	RPCURL       string
	ExplorerURL  string
	NativeSymbol string
}

// TokensConfig holds the fixed contract addresses
type TokensConfig struct {
	Project       string
	ProjectSymbol string
	Stable        string
	StableSymbol  string
	WrappedNative string
	Router        string
}

// WalletConfig configures the key-backed signer
type WalletConfig struct {
	PrivateKey     string
	DetectRetries  int
	DetectInterval time.Duration
}

// PriceFeedConfig configures the USD price source
type PriceFeedConfig struct {
	URL          string
	Timeout      time.Duration
	PollInterval time.Duration
}

// SwapConfig holds the swap form defaults
type SwapConfig struct {
	Slippage decimal.Decimal
	Debounce time.Duration
	Deadline time.Duration
}

// HTTPConfig configures the serve command
type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

// Config holds the application configuration
type Config struct {
	Chain          ChainConfig
	Tokens         TokensConfig
	Wallet         WalletConfig
	PriceFeed      PriceFeedConfig
	Swap           SwapConfig
	NativeUSDPrice decimal.Decimal
	TaskDelay      time.Duration
	ScanRate       float64
	DataDir        string
	HTTP           HTTPConfig
	Site           types.SiteConfig
}

var globalConfig *Config

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	defaults := site.Defaults()

	v.SetDefault("chain.id", "0x38")
	v.SetDefault("chain.name", "Binance Smart Chain Mainnet")
	v.SetDefault("chain.rpc_url", "https://bsc-dataseed1.binance.org/")
	v.SetDefault("chain.explorer_url", "https://bscscan.com/")
	v.SetDefault("chain.native_symbol", "BNB")

	v.SetDefault("tokens.project", "0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3")
	v.SetDefault("tokens.project_symbol", "Ti")
	v.SetDefault("tokens.stable", "0x55d398326f99059fF775485246999027B3197955")
	v.SetDefault("tokens.stable_symbol", "USDT")
	v.SetDefault("tokens.wrapped_native", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	v.SetDefault("router.address", "0x10ED43C718714eb63d5aA57B78B54704E256024E")

	v.SetDefault("wallet.detect_retries", 3)
	v.SetDefault("wallet.detect_interval", 500*time.Millisecond)

	v.SetDefault("price_feed.url", "https://api.dexscreener.com/latest/dex/tokens/")
	v.SetDefault("price_feed.timeout", 10*time.Second)
	v.SetDefault("price_feed.poll_interval", 10*time.Second)
	v.SetDefault("native_usd_price", "600")

	v.SetDefault("swap.slippage", "0.5")
	v.SetDefault("swap.debounce", 600*time.Millisecond)
	v.SetDefault("swap.deadline", 20*time.Minute)

	v.SetDefault("airdrop.task_delay", time.Second)
	v.SetDefault("admin.scan_rate", 5)

	v.SetDefault("data_dir", filepath.Join(home, store.DefaultDirName))
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{})

	v.SetDefault("site.hero_title_prefix", defaults.HeroTitlePrefix)
	v.SetDefault("site.hero_title_suffix", defaults.HeroTitleSuffix)
	v.SetDefault("site.hero_subtitle", defaults.HeroSubtitle)
	v.SetDefault("site.token_base_price", defaults.TokenBasePrice.String())
	v.SetDefault("site.airdrop_amount", defaults.AirdropAmountPerUser.String())
	v.SetDefault("site.telegram", defaults.Telegram)
	v.SetDefault("site.twitter", defaults.Twitter)
	v.SetDefault("admin.username", defaults.AdminUser)
	v.SetDefault("admin.password", defaults.AdminPass)
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
	}
	return d, nil
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".ti-portal")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables, e.g. TI_PORTAL_WALLET_PRIVATE_KEY
	v.SetEnvPrefix("TI_PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Chain: ChainConfig{
			ID:           v.GetString("chain.id"),
			Name:         v.GetString("chain.name"),
			RPCURL:       v.GetString("chain.rpc_url"),
			ExplorerURL:  v.GetString("chain.explorer_url"),
			NativeSymbol: v.GetString("chain.native_symbol"),
		},
		Tokens: TokensConfig{
			Project:       v.GetString("tokens.project"),
			ProjectSymbol: v.GetString("tokens.project_symbol"),
			Stable:        v.GetString("tokens.stable"),
			StableSymbol:  v.GetString("tokens.stable_symbol"),
			WrappedNative: v.GetString("tokens.wrapped_native"),
			Router:        v.GetString("router.address"),
		},
		Wallet: WalletConfig{
			PrivateKey:     v.GetString("wallet.private_key"),
			DetectRetries:  v.GetInt("wallet.detect_retries"),
			DetectInterval: v.GetDuration("wallet.detect_interval"),
		},
		PriceFeed: PriceFeedConfig{
			URL:          v.GetString("price_feed.url"),
			Timeout:      v.GetDuration("price_feed.timeout"),
			PollInterval: v.GetDuration("price_feed.poll_interval"),
		},
		Swap: SwapConfig{
			Debounce: v.GetDuration("swap.debounce"),
			Deadline: v.GetDuration("swap.deadline"),
		},
		TaskDelay: v.GetDuration("airdrop.task_delay"),
		ScanRate:  v.GetFloat64("admin.scan_rate"),
		DataDir:   v.GetString("data_dir"),
		HTTP: HTTPConfig{
			Addr:        v.GetString("http.addr"),
			CORSOrigins: v.GetStringSlice("http.cors_origins"),
		},
		Site: types.SiteConfig{
			HeroTitlePrefix: v.GetString("site.hero_title_prefix"),
			HeroTitleSuffix: v.GetString("site.hero_title_suffix"),
			HeroSubtitle:    v.GetString("site.hero_subtitle"),
			Telegram:        v.GetString("site.telegram"),
			Twitter:         v.GetString("site.twitter"),
			AdminUser:       v.GetString("admin.username"),
			AdminPass:       v.GetString("admin.password"),
		},
	}

	var err error
	if cfg.Swap.Slippage, err = getDecimal(v, "swap.slippage"); err != nil {
		return nil, err
	}
	if cfg.NativeUSDPrice, err = getDecimal(v, "native_usd_price"); err != nil {
		return nil, err
	}
	if cfg.Site.TokenBasePrice, err = getDecimal(v, "site.token_base_price"); err != nil {
		return nil, err
	}
	if cfg.Site.AirdropAmountPerUser, err = getDecimal(v, "site.airdrop_amount"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects malformed addresses and chain IDs
func (c *Config) Validate() error {
	if _, err := chain.NormalizeChainID(c.Chain.ID); err != nil || !strings.HasPrefix(c.Chain.ID, "0x") {
		return fmt.Errorf("invalid chain id %q: expected hex such as 0x38", c.Chain.ID)
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("RPC URL not configured. Please set TI_PORTAL_CHAIN_RPC_URL")
	}

	addresses := map[string]string{
		"tokens.project":        c.Tokens.Project,
		"tokens.stable":         c.Tokens.Stable,
		"tokens.wrapped_native": c.Tokens.WrappedNative,
		"router.address":        c.Tokens.Router,
	}
	for key, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s: %q is not an address", key, addr)
		}
	}

	if c.NativeUSDPrice.IsNegative() {
		return fmt.Errorf("native_usd_price cannot be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir not configured")
	}
	return nil
}

// NativeToken is the chain's native coin
func (c *Config) NativeToken() types.Token {
	return types.Token{Symbol: c.Chain.NativeSymbol, Address: types.NativeAddress, Decimals: types.NativeDecimals}
}

// ProjectToken is the portal's own token
func (c *Config) ProjectToken() types.Token {
	return types.Token{Symbol: c.Tokens.ProjectSymbol, Address: common.HexToAddress(c.Tokens.Project)}
}

// StableToken is the USD reference asset
func (c *Config) StableToken() types.Token {
	return types.Token{Symbol: c.Tokens.StableSymbol, Address: common.HexToAddress(c.Tokens.Stable)}
}

// WrappedNative is the router's intermediate asset
func (c *Config) WrappedNative() types.Token {
	return types.Token{Symbol: "W" + c.Chain.NativeSymbol, Address: common.HexToAddress(c.Tokens.WrappedNative), Decimals: types.NativeDecimals}
}

// TokenList returns the tradable assets, native first
func (c *Config) TokenList() types.TokenList {
	return types.TokenList{c.NativeToken(), c.StableToken(), c.ProjectToken()}
}

// ChainParams returns the network metadata the wallet needs to add the chain
func (c *Config) ChainParams() chain.ChainParams {
	return chain.ChainParams{
		ChainID:        c.Chain.ID,
		ChainName:      c.Chain.Name,
		NativeName:     c.Chain.NativeSymbol,
		NativeSymbol:   c.Chain.NativeSymbol,
		NativeDecimals: types.NativeDecimals,
		RPCURLs:        []string{c.Chain.RPCURL},
		ExplorerURLs:   []string{c.Chain.ExplorerURL},
	}
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
