package swap

import (
	"errors"
	"fmt"

	"ti-portal/pkg/chain"
)

// AlertKind classifies a failed swap for display
type AlertKind string

const (
	AlertRejected           AlertKind = "rejected"
	AlertInsufficientNative AlertKind = "insufficient_native"
	AlertInsufficientToken  AlertKind = "insufficient_token"
	AlertQuoteUnavailable   AlertKind = "quote_unavailable"
	AlertFailed             AlertKind = "failed"
)

// Alert is the one-line message shown after a swap returns to INPUT
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
}

// Silent reports whether the alert should be shown inline rather than as a dialog
func (a *Alert) Silent() bool {
	return a != nil && a.Kind == AlertRejected
}

// AlertFor maps a swap error onto its failure class
func AlertFor(err error) *Alert {
	if err == nil {
		return nil
	}

	var balErr *chain.InsufficientBalanceError
	switch {
	case chain.IsUserRejected(err):
		return &Alert{Kind: AlertRejected, Message: "Operation rejected"}
	case errors.As(err, &balErr):
		kind := AlertInsufficientToken
		if balErr.Asset == chain.AssetNative {
			kind = AlertInsufficientNative
		}
		return &Alert{Kind: kind, Message: fmt.Sprintf("Insufficient %s balance", balErr.Symbol)}
	case errors.Is(err, chain.ErrQuoteUnavailable):
		return &Alert{Kind: AlertQuoteUnavailable, Message: "No route available for this pair"}
	default:
		return &Alert{Kind: AlertFailed, Message: "Error: " + chain.RevertReason(err)}
	}
}
