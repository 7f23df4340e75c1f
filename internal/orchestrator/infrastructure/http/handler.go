package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/internal/orchestrator/domain"
)

type SagaReader interface {
	State(ctx context.Context, orderID uuid.UUID) (*domain.State, error)
	History(ctx context.Context, orderID uuid.UUID) ([]domain.JournalEntry, error)
}

// Handler is the read-only admin surface of the orchestrator.
type Handler struct {
	log    *slog.Logger
	reader SagaReader
}

func NewHandler(log *slog.Logger, reader SagaReader) *Handler {
	return &Handler{log: log, reader: reader}
}

type sagaResp struct {
	State   *domain.State         `json:"state"`
	History []domain.JournalEntry `json:"history,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/sagas/{orderID}", h.getSaga)
	return r
}

func (h *Handler) getSaga(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	st, err := h.reader.State(r.Context(), id)
	if errors.Is(err, domain.ErrUnknownSaga) {
		http.Error(w, "no saga for order", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "load saga failed", "order_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	hist, err := h.reader.History(r.Context(), id)
	if err != nil {
		h.log.WarnContext(r.Context(), "load saga history failed", "order_id", id, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sagaResp{State: st, History: hist})
}
