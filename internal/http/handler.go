package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/inventory"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/models"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/price"
	"github.com/BigDeckClub/BigDeckAppV3-sub007/internal/valuation"
)

// minRefreshSpacing throttles manual refresh triggers; the single-flight
// in the price service already absorbs true concurrency.
const minRefreshSpacing = time.Minute

// Handler wires all REST endpoints.
type Handler struct {
	priceSvc     *price.Service
	valuationSvc *valuation.Engine
	invStore     *inventory.Store
	refreshLimit *rate.Limiter
}

// NewHandler builds the route handler. invStore may be nil when no
// collection database is configured; the collection endpoints then answer
// 503.
func NewHandler(priceSvc *price.Service, valuationSvc *valuation.Engine, invStore *inventory.Store) *Handler {
	return &Handler{
		priceSvc:     priceSvc,
		valuationSvc: valuationSvc,
		invStore:     invStore,
		// Upstream documents are huge; one manual refresh a minute is plenty.
		refreshLimit: rate.NewLimiter(rate.Every(minRefreshSpacing), 1),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.handleHealth)
	r.Get("/status", h.handleStatus)

	r.Route("/", func(r chi.Router) {
		r.Get("/prices/upstream/{printingId}", h.handleUpstreamPrice)
		r.Get("/prices/{cardId}", h.handleCardPrices)
		r.Get("/collections/{userId}/value", h.handleCollectionValue)
		r.Post("/value", h.handleValueRows)
		r.Post("/admin/refresh", h.handleRefresh)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.priceSvc.Status()
	if status.PricedCards == 0 {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "initializing"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.priceSvc.Status())
}

func (h *Handler) handleCardPrices(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(chi.URLParam(r, "cardId"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse("invalid card id"))
		return
	}

	prices, known := h.priceSvc.PricesByCatalogID(cardID.String())
	render.JSON(w, r, cardPricesResponse{
		CardID: cardID.String(),
		Known:  known,
		Prices: prices,
	})
}

func (h *Handler) handleUpstreamPrice(w http.ResponseWriter, r *http.Request) {
	printingID := chi.URLParam(r, "printingId")
	source := r.URL.Query().Get("source")
	if source == "" {
		source = models.SourceTCGPlayer
	}
	if !models.ValidSource(source) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse("unknown price source"))
		return
	}

	resp := upstreamPriceResponse{PrintingID: printingID, Source: source}
	if p, ok := h.priceSvc.PriceByUpstreamID(printingID, source); ok {
		resp.Price = &p
	}
	render.JSON(w, r, resp)
}

func (h *Handler) handleCollectionValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invStore == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, errorResponse("collection storage not configured"))
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse("invalid user id"))
		return
	}

	invRows, err := h.invStore.ListUserRows(ctx, userID)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse(err.Error()))
		return
	}

	rows := make([]valuation.Row, 0, len(invRows))
	for _, row := range invRows {
		vr := valuation.Row{CardID: row.CardID, Quantity: row.Quantity}
		if row.PurchasePrice.IsPositive() {
			p := row.PurchasePrice
			vr.Fallback = &p
		}
		rows = append(rows, vr)
	}

	h.renderValuation(w, r, rows, r.URL.Query().Get("preferred"))
}

func (h *Handler) handleValueRows(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse("invalid payload"))
		return
	}
	if err := req.validate(); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse(err.Error()))
		return
	}

	h.renderValuation(w, r, req.toRows(), req.Preferred)
}

func (h *Handler) renderValuation(w http.ResponseWriter, r *http.Request, rows []valuation.Row, preferred string) {
	if preferred != "" && !models.ValidSource(preferred) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse("unknown price source"))
		return
	}

	resp := valueResponse{Summary: h.valuationSvc.Value(rows)}
	if preferred != "" {
		total := h.valuationSvc.BestAvailableTotal(rows, preferred)
		resp.BestAvailableTotal = &total
	}
	render.JSON(w, r, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.refreshLimit.Allow() {
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, errorResponse("refresh was triggered recently"))
		return
	}

	go func() {
		if err := h.priceSvc.Refresh(context.Background()); err != nil {
			log.Printf("manual refresh: %v", err)
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "refresh started"})
}

type cardPricesResponse struct {
	CardID string            `json:"cardId"`
	Known  bool              `json:"known"`
	Prices models.CardPrices `json:"prices"`
}

type upstreamPriceResponse struct {
	PrintingID string           `json:"printingId"`
	Source     string           `json:"source"`
	Price      *decimal.Decimal `json:"price"`
}

type valueRequest struct {
	Rows []struct {
		CardID        string           `json:"cardId"`
		Quantity      int64            `json:"quantity"`
		FallbackPrice *decimal.Decimal `json:"fallbackPrice,omitempty"`
	} `json:"rows"`
	Preferred string `json:"preferredSource,omitempty"`
}

func (req valueRequest) validate() error {
	if len(req.Rows) == 0 {
		return errors.New("rows are required")
	}
	for _, row := range req.Rows {
		if row.Quantity <= 0 {
			return errors.New("quantity must be greater than zero")
		}
	}
	return nil
}

func (req valueRequest) toRows() []valuation.Row {
	rows := make([]valuation.Row, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, valuation.Row{
			CardID:   row.CardID,
			Quantity: row.Quantity,
			Fallback: row.FallbackPrice,
		})
	}
	return rows
}

type valueResponse struct {
	Summary            models.ValuationSummary `json:"summary"`
	BestAvailableTotal *decimal.Decimal        `json:"bestAvailableTotal,omitempty"`
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}
