// Package httpapi is the public site's HTTP surface.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ti-portal/pkg/airdrop"
	"ti-portal/pkg/chat"
	"ti-portal/pkg/metrics"
	"ti-portal/pkg/site"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource reports the cached token price
type PriceSource interface {
	Current() decimal.Decimal
}

// Quoter prices swaps on the router
type Quoter interface {
	Quote(ctx context.Context, amountIn string, in, out types.Token) types.SwapQuote
	Symbols(path []common.Address, tokens types.TokenList, nativeSymbol string) []string
}

// Registrar records airdrop addresses
type Registrar interface {
	Register(address string) (types.AirdropEntry, error)
}

// Handler serves the API
type Handler struct {
	site         *site.Store
	prices       PriceSource
	quotes       Quoter
	registry     Registrar
	room         *chat.Room
	tokens       types.TokenList
	nativeSymbol string
	metrics      *metrics.Metrics
	log          *zap.Logger
}

// Deps are the collaborators a Handler serves
type Deps struct {
	Site         *site.Store
	Prices       PriceSource
	Quotes       Quoter
	Registry     Registrar
	Room         *chat.Room
	Tokens       types.TokenList
	NativeSymbol string
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New("")
	}
	return &Handler{
		site:         d.Site,
		prices:       d.Prices,
		quotes:       d.Quotes,
		registry:     d.Registry,
		room:         d.Room,
		tokens:       d.Tokens,
		nativeSymbol: d.NativeSymbol,
		metrics:      d.Metrics,
		log:          d.Log,
	}
}

// -------- DTOs --------

type priceRes struct {
	Price    decimal.Decimal `json:"price"`
	Fallback bool            `json:"fallback"`
}

type quoteReq struct {
	Amount string `form:"amount" binding:"required"`
	From   string `form:"from"   binding:"required"`
	To     string `form:"to"     binding:"required"`
}

type quoteRes struct {
	AmountIn  string   `json:"amount_in"`
	AmountOut string   `json:"amount_out"`
	Path      []string `json:"path"`
	Available bool     `json:"available"`
}

type registerReq struct {
	Address string `json:"address" binding:"required"`
}

type registerRes struct {
	Entry     types.AirdropEntry `json:"entry"`
	Duplicate bool               `json:"duplicate"`
}

type chatPostReq struct {
	Text   string `json:"text"   binding:"required"`
	Wallet string `json:"wallet"`
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/config
func (h *Handler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, h.site.Get().Public())
}

// GET /api/tokens
func (h *Handler) Tokens(c *gin.Context) {
	c.JSON(http.StatusOK, h.tokens)
}

// GET /api/price
func (h *Handler) Price(c *gin.Context) {
	price := h.prices.Current()
	if price.IsPositive() {
		c.JSON(http.StatusOK, priceRes{Price: price})
		return
	}
	c.JSON(http.StatusOK, priceRes{Price: h.site.Get().TokenBasePrice, Fallback: true})
}

// GET /api/quote?amount=&from=&to=
func (h *Handler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, ok := h.tokens.BySymbol(req.From)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown token: " + req.From})
		return
	}
	out, ok := h.tokens.BySymbol(req.To)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown token: " + req.To})
		return
	}

	q := h.quotes.Quote(c.Request.Context(), req.Amount, in, out)
	if q.Available() {
		h.metrics.Quotes.WithLabelValues("ok").Inc()
	} else {
		h.metrics.Quotes.WithLabelValues("unavailable").Inc()
	}

	c.JSON(http.StatusOK, quoteRes{
		AmountIn:  req.Amount,
		AmountOut: q.AmountOut,
		Path:      h.quotes.Symbols(q.Path, h.tokens, h.nativeSymbol),
		Available: q.Available(),
	})
}

// POST /api/airdrop/register
func (h *Handler) RegisterAirdrop(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	address := strings.TrimSpace(req.Address)
	if !airdrop.ValidAddress(address) {
		h.metrics.Registrations.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": airdrop.ErrInvalidAddress.Error()})
		return
	}

	entry, err := h.registry.Register(address)
	switch {
	case errors.Is(err, airdrop.ErrDuplicate):
		h.metrics.Registrations.WithLabelValues("duplicate").Inc()
		c.JSON(http.StatusConflict, registerRes{Entry: entry, Duplicate: true})
	case err != nil:
		h.log.Error("airdrop registration failed", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	default:
		h.metrics.Registrations.WithLabelValues("new").Inc()
		c.JSON(http.StatusCreated, registerRes{Entry: entry})
	}
}

// GET /api/chat
func (h *Handler) ChatList(c *gin.Context) {
	c.JSON(http.StatusOK, h.room.List())
}

// POST /api/chat
func (h *Handler) ChatPost(c *gin.Context) {
	var req chatPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender := chat.Sender{Operator: isOperator(c)}
	if common.IsHexAddress(req.Wallet) {
		sender.Wallet = req.Wallet
	}

	msg, err := h.room.Post(sender, req.Text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("chat post failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post failed"})
		return
	}

	h.metrics.ChatMessages.Inc()
	c.JSON(http.StatusCreated, msg)
}

// DELETE /api/chat/:id (operator only)
func (h *Handler) ChatDelete(c *gin.Context) {
	err := h.room.Delete(chat.Sender{Operator: isOperator(c)}, c.Param("id"))
	switch {
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotOperator):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case err != nil:
		h.log.Error("chat delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
	default:
		c.Status(http.StatusNoContent)
	}
}
