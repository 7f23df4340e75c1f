package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type StockAdmin interface {
	SetStock(ctx context.Context, isbn, sellerID string, quantity int) error
	Available(ctx context.Context, isbn, sellerID string) (int, error)
}

// Handler lets operators read and restock shelf quantities.
type Handler struct {
	log   *slog.Logger
	stock StockAdmin
}

func NewHandler(log *slog.Logger, stock StockAdmin) *Handler {
	return &Handler{log: log, stock: stock}
}

type stockBody struct {
	BookISBN string `json:"book_isbn"`
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/stock/{isbn}/{sellerID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.put)
	})
	return r
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	isbn, seller := chi.URLParam(r, "isbn"), chi.URLParam(r, "sellerID")
	n, err := h.stock.Available(r.Context(), isbn, seller)
	if err != nil {
		h.log.ErrorContext(r.Context(), "read stock failed", "isbn", isbn, "seller_id", seller, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stockBody{BookISBN: isbn, SellerID: seller, Quantity: n})
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Quantity < 0 {
		http.Error(w, "quantity must not be negative", http.StatusBadRequest)
		return
	}
	isbn, seller := chi.URLParam(r, "isbn"), chi.URLParam(r, "sellerID")
	if err := h.stock.SetStock(r.Context(), isbn, seller, req.Quantity); err != nil {
		h.log.ErrorContext(r.Context(), "set stock failed", "isbn", isbn, "seller_id", seller, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.log.InfoContext(r.Context(), "stock set", "isbn", isbn, "seller_id", seller, "quantity", req.Quantity)
	writeJSON(w, http.StatusOK, stockBody{BookISBN: isbn, SellerID: seller, Quantity: req.Quantity})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
