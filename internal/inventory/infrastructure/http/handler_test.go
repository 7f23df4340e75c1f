package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStock map[string]int

func (m memStock) SetStock(_ context.Context, isbn, seller string, q int) error {
	m[isbn+"/"+seller] = q
	return nil
}

func (m memStock) Available(_ context.Context, isbn, seller string) (int, error) {
	return m[isbn+"/"+seller], nil
}

func TestPutThenGetStock(t *testing.T) {
	stock := memStock{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), stock).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/stock/978-0/s-1", strings.NewReader(`{"quantity":7}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, stock["978-0/s-1"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/978-0/s-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body stockBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, stockBody{BookISBN: "978-0", SellerID: "s-1", Quantity: 7}, body)
}

func TestPutRejectsNegativeQuantity(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), memStock{}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/stock/978-0/s-1", strings.NewReader(`{"quantity":-1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
