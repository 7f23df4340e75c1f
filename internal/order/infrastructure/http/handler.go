package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/internal/order/application"
	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	paymentdomain "github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

type OrderService interface {
	StartCheckout(ctx context.Context, customerID string, cart []application.CartItem) (*domain.Order, error)
	PayOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method string) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ShipOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	DeliverOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	RefundOrder(ctx context.Context, id uuid.UUID, reason string) (*domain.Order, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type checkoutReq struct {
	CustomerID string                 `json:"customer_id"`
	Items      []application.CartItem `json:"items"`
}

type payReq struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type refundReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Post("/checkouts", h.startCheckout)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Post("/pay", h.payOrder)
		r.Post("/ship", h.shipOrder)
		r.Post("/deliver", h.deliverOrder)
		r.Post("/refund", h.refundOrder)
	})
	return r
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "StartCheckout")
	defer span.End()

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	o, err := h.service.StartCheckout(ctx, req.CustomerID, req.Items)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respond(w, http.StatusCreated, o)
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "PayOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req payReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	o, err := h.service.PayOrder(ctx, id, req.Amount, req.PaymentMethod)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respond(w, http.StatusOK, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.start(r, "GetOrder")
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.service.GetOrder(ctx, id)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respond(w, http.StatusOK, o)
}

func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ShipOrder", h.service.ShipOrder)
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "DeliverOrder", h.service.DeliverOrder)
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, "a refund reason is required", http.StatusBadRequest)
		return
	}
	h.transition(w, r, "RefundOrder", func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		return h.service.RefundOrder(ctx, id, req.Reason)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context, id uuid.UUID) (*domain.Order, error)) {
	ctx, span := h.start(r, name)
	defer span.End()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := fn(ctx, id)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respond(w, http.StatusOK, o)
}

func (h *Handler) start(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := tracing.Extract(r.Context(), map[string]string{
		tracing.TraceparentHeader: r.Header.Get(tracing.TraceparentHeader),
	})
	return h.tracer.Start(ctx, name)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		nf  *application.NotFoundError
		pe  *application.PaymentError
		ve  *domain.ValidationError
		sts = http.StatusInternalServerError
	)
	switch {
	case errors.As(err, &nf):
		sts = http.StatusNotFound
	case errors.As(err, &ve):
		sts = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition):
		sts = http.StatusConflict
	case errors.Is(err, domain.ErrConcurrentUpdate):
		sts = http.StatusConflict
	case errors.As(err, &pe) && errors.Is(err, application.ErrStockUnavailable):
		sts = http.StatusConflict
	case errors.As(err, &pe):
		sts = http.StatusPaymentRequired
	case errors.Is(err, paymentdomain.ErrDeclined):
		sts = http.StatusPaymentRequired
	}
	if sts == http.StatusInternalServerError {
		h.log.ErrorContext(ctx, "request failed", "err", err)
	}
	h.respond(w, sts, map[string]string{"error": err.Error()})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
