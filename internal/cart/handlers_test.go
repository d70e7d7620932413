package cart_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/format"
)

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Error *common.ErrorBody `json:"error"`
}

type cartBody struct {
	Instance string `json:"instance"`
	Count    int    `json:"count"`
	Items    []struct {
		RowID string `json:"rowId"`
		ID    string `json:"id"`
	} `json:"items"`
	Taxes []struct {
		ID      string `json:"id"`
		Display string `json:"display"`
	} `json:"taxes"`
	Totals struct {
		Subtotal struct {
			Value   string `json:"value"`
			Display string `json:"display"`
		} `json:"subtotal"`
		Total struct {
			Value   string `json:"value"`
			Display string `json:"display"`
		} `json:"total"`
	} `json:"totals"`
}

func newTestRouter(t *testing.T) (http.Handler, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	h := &cart.Handler{
		Svc:      &cart.Service{Store: store, Logger: zerolog.Nop()},
		Validate: common.NewValidator(),
		Format:   format.Default(),
	}
	r := chi.NewRouter()
	h.Mount(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func decodeCart(t *testing.T, env envelope) cartBody {
	t.Helper()
	var body cartBody
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body
}

func TestHandlerAddAndGet(t *testing.T) {
	r, store := newTestRouter(t)

	rr, env := do(t, r, http.MethodPost, "/carts/c1/items",
		`{"id":"sku-1","name":"Mug","quantity":"1000","unitPrice":"1.5","taxRules":[{"id":"vat","rate":"10"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeCart(t, env)
	require.Equal(t, "c1", body.Instance)
	require.Equal(t, 1, body.Count)
	require.Equal(t, "1500", body.Totals.Subtotal.Value)
	require.Equal(t, "1.500,00", body.Totals.Subtotal.Display)
	require.Equal(t, "1.650,00", body.Totals.Total.Display)
	require.Equal(t, 1, store.Len())

	rr, env = do(t, r, http.MethodGet, "/carts/c1/taxes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var taxes struct {
		Taxes []struct {
			ID      string `json:"id"`
			Amount  string `json:"amount"`
			Display string `json:"display"`
		} `json:"taxes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &taxes))
	require.Len(t, taxes.Taxes, 1)
	require.Equal(t, "150,00", taxes.Taxes[0].Display)
}

func TestHandlerBatchAndRemove(t *testing.T) {
	r, store := newTestRouter(t)

	rr, env := do(t, r, http.MethodPost, "/carts/c1/items",
		`{"items":[{"id":"a","quantity":1,"unitPrice":2},{"id":"b","quantity":2,"unitPrice":3}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeCart(t, env)
	require.Len(t, body.Items, 2)
	require.Equal(t, "8", body.Totals.Total.Value)

	rr, env = do(t, r, http.MethodDelete, "/carts/c1/items/"+body.Items[0].RowID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, decodeCart(t, env).Count)

	rr, env = do(t, r, http.MethodPatch, "/carts/c1/items/"+body.Items[1].RowID, `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 0, decodeCart(t, env).Count)
	require.Zero(t, store.Len())

	rr, env = do(t, r, http.MethodDelete, "/carts/c1/items/"+body.Items[1].RowID, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandlerValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rr, env := do(t, r, http.MethodPost, "/carts/c1/items", `{"name":"no id","quantity":1,"unitPrice":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	rr, env = do(t, r, http.MethodPost, "/carts/c1/items", `{"id":"a","quantity":0,"unitPrice":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "INVALID_QUANTITY", env.Error.Code)

	rr, env = do(t, r, http.MethodPost, "/carts/c1/items", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)

	rr, env = do(t, r, http.MethodPost, "/carts/c1/price-rules", `{"id":"x","discountType":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestHandlerPriceRules(t *testing.T) {
	r, _ := newTestRouter(t)

	rr, _ := do(t, r, http.MethodPost, "/carts/c1/items", `{"id":"a","quantity":2,"unitPrice":10}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, env := do(t, r, http.MethodPost, "/carts/c1/price-rules",
		`{"id":"ten","discountType":"subtotal_percentage","percentage":10}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		PriceRule cart.PriceRule `json:"priceRule"`
		Cart      cartBody       `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.True(t, created.PriceRule.Combinable)
	require.Equal(t, "2", created.PriceRule.DiscountAmount.String())
	require.Equal(t, "18", created.Cart.Totals.Total.Value)

	rr, env = do(t, r, http.MethodPost, "/carts/c1/price-rules",
		`{"id":"five","discountType":"total_percentage","percentage":5}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "MUTUALLY_EXCLUSIVE_DISCOUNT", env.Error.Code)

	rr, env = do(t, r, http.MethodPost, "/carts/c1/price-rules",
		`{"id":"ten","discountType":"subtotal_fixed_amount","fixed":1}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "DUPLICATE_RULE", env.Error.Code)
}

func TestHandlerShippingCreateAndDestroy(t *testing.T) {
	r, store := newTestRouter(t)

	rr, env := do(t, r, http.MethodPost, "/carts/", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		Instance string `json:"instance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.Instance)

	rr, _ = do(t, r, http.MethodPost, "/carts/c1/items", `{"id":"a","quantity":1,"unitPrice":10}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, _ = do(t, r, http.MethodPut, "/carts/c1/shipping", `{"hasShipping":true,"amount":"4.99"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, r, http.MethodDelete, "/carts/c1", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Zero(t, store.Len())

	rr, env = do(t, r, http.MethodGet, "/carts/c1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 0, decodeCart(t, env).Count)
}

func TestHandlerPriceRuleBeforeItems(t *testing.T) {
	r, store := newTestRouter(t)

	rr, env := do(t, r, http.MethodPost, "/carts/c1/price-rules",
		`{"id":"ten","discountType":"subtotal_percentage","percentage":10}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, 1, store.Len())

	rr, env = do(t, r, http.MethodPost, "/carts/c1/items", `{"id":"a","quantity":2,"unitPrice":10}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeCart(t, env)
	require.Equal(t, "20", body.Totals.Subtotal.Value)
	require.Equal(t, "18", body.Totals.Total.Value)
}
