package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletState is the single session view of the connected wallet
type WalletState struct {
	Connected     bool            `json:"connected"`
	Address       string          `json:"address,omitempty"`
	BalanceToken  decimal.Decimal `json:"balance_token"`
	BalanceStable decimal.Decimal `json:"balance_stable"`
	BalanceNative decimal.Decimal `json:"balance_native"`
}

// DisconnectedWallet returns the initial wallet state
func DisconnectedWallet() WalletState {
	return WalletState{
		BalanceToken:  decimal.Zero,
		BalanceStable: decimal.Zero,
		BalanceNative: decimal.Zero,
	}
}

// AirdropStatus defines where an airdrop entry is in its lifecycle
type AirdropStatus string

const (
	AirdropPending     AirdropStatus = "Pending"     // Registered, awaiting transfer
	AirdropDistributed AirdropStatus = "Distributed" // Transfer confirmed on chain
)

// AirdropEntry is one registered airdrop recipient
type AirdropEntry struct {
	ID           string        `json:"id"`
	Address      string        `json:"address"`
	RegisteredAt time.Time     `json:"registered_at"`
	Status       AirdropStatus `json:"status"`
	// CurrentBalance is filled by an operator scan and is informational only
	CurrentBalance *decimal.Decimal `json:"current_balance,omitempty"`
}

// IsPending returns true if the entry still awaits distribution
func (e AirdropEntry) IsPending() bool {
	return e.Status == AirdropPending
}

// SiteConfig holds operator-editable copy and economic parameters
type SiteConfig struct {
	HeroTitlePrefix      string          `json:"hero_title_prefix"`
	HeroTitleSuffix      string          `json:"hero_title_suffix"`
	HeroSubtitle         string          `json:"hero_subtitle"`
	TokenBasePrice       decimal.Decimal `json:"token_base_price"`
	AirdropAmountPerUser decimal.Decimal `json:"airdrop_amount_per_user"`
	Telegram             string          `json:"telegram"`
	Twitter              string          `json:"twitter"`
	AdminUser            string          `json:"admin_user,omitempty"`
	AdminPass            string          `json:"admin_pass,omitempty"`
}

// Public returns a copy safe to hand to unauthenticated readers
func (c SiteConfig) Public() SiteConfig {
	c.AdminUser = ""
	c.AdminPass = ""
	return c
}

// PublicMessage is one entry in the public chat room
type PublicMessage struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsOperator bool      `json:"is_operator,omitempty"`
}
