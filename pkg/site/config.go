// Package site owns the operator-editable SiteConfig.
package site

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ti-portal/pkg/store"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned by Authenticate on a mismatch
var ErrInvalidCredentials = errors.New("invalid credentials")

// Defaults returns the configuration used when nothing is stored
func Defaults() types.SiteConfig {
	return types.SiteConfig{
		HeroTitlePrefix:      "Awaken the",
		HeroTitleSuffix:      "Future",
		HeroSubtitle:         "Join the Cyber Revolution. Secure, Fast, Anarchist. The ultimate form on BSC.",
		TokenBasePrice:       decimal.RequireFromString("0.125"),
		AirdropAmountPerUser: decimal.NewFromInt(100),
		Telegram:             "https://t.me/TI_Coin_Community",
		Twitter:              "https://twitter.com/TiCoinOfficial",
		AdminUser:            "admin",
		AdminPass:            "admin",
	}
}

// Store keeps the SiteConfig loaded once and writes every change through
type Store struct {
	store *store.Store
	log   *zap.Logger
	feed  event.Feed

	mu  sync.RWMutex
	cfg types.SiteConfig
}

// Load reads the stored config, falling back to defaults for a missing blob
// and for blank fields
func Load(s *store.Store, defaults types.SiteConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg := defaults
	if s != nil {
		var stored types.SiteConfig
		found, err := s.Load(store.KeySiteConfig, &stored)
		if err != nil {
			return nil, fmt.Errorf("failed to load site config: %w", err)
		}
		if found {
			cfg = merge(defaults, stored)
		}
	}

	return &Store{store: s, log: log, cfg: cfg}, nil
}

func merge(base, over types.SiteConfig) types.SiteConfig {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&base.HeroTitlePrefix, over.HeroTitlePrefix)
	pick(&base.HeroTitleSuffix, over.HeroTitleSuffix)
	pick(&base.HeroSubtitle, over.HeroSubtitle)
	pick(&base.Telegram, over.Telegram)
	pick(&base.Twitter, over.Twitter)
	pick(&base.AdminUser, over.AdminUser)
	pick(&base.AdminPass, over.AdminPass)
	if over.TokenBasePrice.IsPositive() {
		base.TokenBasePrice = over.TokenBasePrice
	}
	if over.AirdropAmountPerUser.IsPositive() {
		base.AirdropAmountPerUser = over.AirdropAmountPerUser
	}
	return base
}

// Get returns the full config, credentials included
func (s *Store) Get() types.SiteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe delivers the config after every update
func (s *Store) Subscribe(ch chan<- types.SiteConfig) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Update applies fn to a copy of the config and persists the result
func (s *Store) Update(fn func(*types.SiteConfig)) (types.SiteConfig, error) {
	s.mu.Lock()
	next := s.cfg
	fn(&next)
	if next.TokenBasePrice.IsNegative() || next.AirdropAmountPerUser.IsNegative() {
		s.mu.Unlock()
		return s.Get(), fmt.Errorf("prices and amounts cannot be negative")
	}
	if s.store != nil {
		if err := s.store.Save(store.KeySiteConfig, next); err != nil {
			s.mu.Unlock()
			return s.Get(), err
		}
	}
	s.cfg = next
	s.mu.Unlock()

	s.log.Info("site config updated")
	s.feed.Send(next)
	return next, nil
}

// Authenticate checks operator credentials in constant time
func (s *Store) Authenticate(user, pass string) error {
	cfg := s.Get()
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.AdminPass)) == 1
	if !userOK || !passOK {
		s.log.Warn("operator login failed", zap.String("user", user))
		return ErrInvalidCredentials
	}
	return nil
}

// Set assigns a single field by its key, as used by the admin CLI
func Set(cfg *types.SiteConfig, key, value string) error {
	switch key {
	case "hero_title_prefix":
		cfg.HeroTitlePrefix = value
	case "hero_title_suffix":
		cfg.HeroTitleSuffix = value
	case "hero_subtitle":
		cfg.HeroSubtitle = value
	case "telegram":
		cfg.Telegram = value
	case "twitter":
		cfg.Twitter = value
	case "admin_user":
		cfg.AdminUser = value
	case "admin_pass":
		cfg.AdminPass = value
	case "token_base_price", "airdrop_amount_per_user":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		if key == "token_base_price" {
			cfg.TokenBasePrice = d
		} else {
			cfg.AirdropAmountPerUser = d
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Keys lists the names accepted by Set
func Keys() []string {
	return []string{
		"hero_title_prefix", "hero_title_suffix", "hero_subtitle",
		"token_base_price", "airdrop_amount_per_user",
		"telegram", "twitter", "admin_user", "admin_pass",
	}
}
