package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/order-fulfillment/internal/sellerstats/domain"
)

type StatsReader interface {
	Stats(ctx context.Context, sellerID string) (domain.SellerStats, error)
}

type Handler struct {
	log    *slog.Logger
	reader StatsReader
}

func NewHandler(log *slog.Logger, reader StatsReader) *Handler {
	return &Handler{log: log, reader: reader}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/sellers/{sellerID}/stats", h.getStats)
	return r
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	seller := chi.URLParam(r, "sellerID")
	st, err := h.reader.Stats(r.Context(), seller)
	if err != nil {
		h.log.ErrorContext(r.Context(), "load seller stats failed", "seller_id", seller, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}
