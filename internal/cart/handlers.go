package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/format"
	"github.com/noah-isme/toko-cart/internal/lock"
)

const maxBodyBytes = 1 << 20

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Format   format.Options
}

// Mount registers the cart routes on r. Write routes are wrapped with writeMiddlewares,
// typically idempotency and rate limiting.
func (h *Handler) Mount(r chi.Router, writeMiddlewares ...func(http.Handler) http.Handler) {
	r.Route("/carts", func(r chi.Router) {
		r.Get("/{instance}", h.Get)
		r.Get("/{instance}/taxes", h.Taxes)
		r.Group(func(r chi.Router) {
			r.Use(writeMiddlewares...)
			r.Post("/", h.Create)
			r.Delete("/{instance}", h.Destroy)
			r.Post("/{instance}/items", h.AddItems)
			r.Put("/{instance}/items/{rowId}", h.UpdateItem)
			r.Patch("/{instance}/items/{rowId}", h.SetQuantity)
			r.Delete("/{instance}/items/{rowId}", h.RemoveItem)
			r.Post("/{instance}/price-rules", h.AddPriceRule)
			r.Put("/{instance}/shipping", h.SetShipping)
		})
	})
}

type taxRulePayload struct {
	ID   string          `json:"id" validate:"required,max=64"`
	Name string          `json:"name" validate:"max=128"`
	Rate decimal.Decimal `json:"rate"`
}

type itemPayload struct {
	ID        string            `json:"id" validate:"required,max=128"`
	Name      string            `json:"name" validate:"max=255"`
	Quantity  decimal.Decimal   `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	Options   map[string]string `json:"options" validate:"max=32"`
	TaxRules  []taxRulePayload  `json:"taxRules" validate:"max=16,dive"`
}

type batchPayload struct {
	Items []itemPayload `json:"items" validate:"required,min=1,max=100,dive"`
}

type quantityPayload struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
}

type priceRulePayload struct {
	ID                  string          `json:"id" validate:"required,max=128"`
	Name                string          `json:"name" validate:"max=255"`
	DiscountType        string          `json:"discountType" validate:"required,oneof=subtotal_percentage total_percentage subtotal_fixed_amount total_fixed_amount"`
	Percentage          decimal.Decimal `json:"percentage"`
	Fixed               decimal.Decimal `json:"fixed"`
	ApplyShippingAmount bool            `json:"applyShippingAmount"`
	Combinable          *bool           `json:"combinable"`
	FreeShipping        bool            `json:"freeShipping"`
}

type shippingPayload struct {
	HasShipping bool            `json:"hasShipping"`
	Amount      decimal.Decimal `json:"amount"`
}

func (p itemPayload) lineItem() (LineItem, error) {
	if p.UnitPrice.IsNegative() {
		return LineItem{}, common.NewAppError("BAD_REQUEST", "unitPrice must not be negative", http.StatusBadRequest, nil)
	}
	taxRules := make([]TaxRule, 0, len(p.TaxRules))
	for _, tr := range p.TaxRules {
		if tr.Rate.IsNegative() {
			return LineItem{}, common.NewAppError("BAD_REQUEST", "tax rate must not be negative", http.StatusBadRequest, nil)
		}
		taxRules = append(taxRules, TaxRule{ID: tr.ID, Name: tr.Name, Rate: tr.Rate})
	}
	return NewLineItem(p.ID, p.Name, p.Quantity, p.UnitPrice, p.Options, taxRules...)
}

func (p priceRulePayload) priceRule() (PriceRule, error) {
	if p.Percentage.IsNegative() || p.Fixed.IsNegative() {
		return PriceRule{}, common.NewAppError("BAD_REQUEST", "discount must not be negative", http.StatusBadRequest, nil)
	}
	combinable := true
	if p.Combinable != nil {
		combinable = *p.Combinable
	}
	return PriceRule{
		ID:           p.ID,
		Name:         p.Name,
		DiscountType: DiscountType(p.DiscountType),
		Discount: Discount{
			Percentage:          p.Percentage,
			Fixed:               p.Fixed,
			ApplyShippingAmount: p.ApplyShippingAmount,
		},
		Combinable:   combinable,
		FreeShipping: p.FreeShipping,
	}, nil
}

// Create allocates a new cart instance identifier. Nothing is stored until the first item.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Instance string `json:"instance"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload)
	instance := strings.TrimSpace(payload.Instance)
	if instance == "" {
		instance = uuid.NewString()
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"instance": instance}})
}

// Get returns the cart contents and totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "instance"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// Taxes returns the tax amount aggregated per tax rule.
func (h *Handler) Taxes(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	summary, err := h.Svc.TaxSummary(r.Context(), chi.URLParam(r, "instance"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	taxes := make([]taxView, 0, summary.Len())
	for _, tr := range summary.All() {
		taxes = append(taxes, taxView{TaxRule: tr, Display: h.Format.Format(tr.Amount)})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"taxes": taxes}})
}

// Destroy clears the cart.
func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	if err := h.Svc.Destroy(r.Context(), chi.URLParam(r, "instance")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItems adds a single item, or every item of an {"items": [...]} batch, in order.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	var probe struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}

	var payloads []itemPayload
	if len(bytes.TrimSpace(probe.Items)) > 0 {
		var batch batchPayload
		if err := json.Unmarshal(body, &batch); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
		if err := h.validate(batch); err != nil {
			h.writeError(w, err)
			return
		}
		payloads = batch.Items
	} else {
		var single itemPayload
		if err := json.Unmarshal(body, &single); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
		if err := h.validate(single); err != nil {
			h.writeError(w, err)
			return
		}
		payloads = []itemPayload{single}
	}

	items := make([]LineItem, 0, len(payloads))
	for _, p := range payloads {
		item, err := p.lineItem()
		if err != nil {
			h.writeError(w, err)
			return
		}
		items = append(items, item)
	}
	instance := chi.URLParam(r, "instance")
	if _, err := h.Svc.Add(r.Context(), instance, items...); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondWithCart(w, r, http.StatusCreated, instance)
}

// UpdateItem replaces a row.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload itemPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	item, err := payload.lineItem()
	if err != nil {
		h.writeError(w, err)
		return
	}
	instance := chi.URLParam(r, "instance")
	if _, err := h.Svc.Update(r.Context(), instance, chi.URLParam(r, "rowId"), item); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondWithCart(w, r, http.StatusOK, instance)
}

// SetQuantity changes the quantity of a row. Zero or less removes the row.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload quantityPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_QUANTITY", "quantity must be a number", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.SetQuantity(r.Context(), chi.URLParam(r, "instance"), chi.URLParam(r, "rowId"), *payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// RemoveItem deletes a row. Removing the last row destroys the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Remove(r.Context(), chi.URLParam(r, "instance"), chi.URLParam(r, "rowId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

// AddPriceRule applies a price rule to the cart.
func (h *Handler) AddPriceRule(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload priceRulePayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		h.writeError(w, err)
		return
	}
	rule, err := payload.priceRule()
	if err != nil {
		h.writeError(w, err)
		return
	}
	instance := chi.URLParam(r, "instance")
	stored, err := h.Svc.AddPriceRule(r.Context(), instance, rule)
	if err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.Get(r.Context(), instance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"priceRule": stored,
			"cart":      newCartView(c, h.Format),
		},
	})
}

// SetShipping records whether the cart ships and the shipping cost.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload shippingPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.Amount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must not be negative", nil)
		return
	}
	c, err := h.Svc.SetShipping(r.Context(), chi.URLParam(r, "instance"), payload.HasShipping, payload.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK, c)
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	if err := h.Validate.Struct(v); err != nil {
		return common.ValidationError(err)
	}
	return nil
}

func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, status int, instance string) {
	c, err := h.Svc.Get(r.Context(), instance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, status, c)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, c *Cart) {
	common.JSON(w, status, map[string]any{"data": newCartView(c, h.Format)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDuplicateRule):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_RULE", err.Error(), nil)
	case errors.Is(err, ErrNotCombinable):
		common.JSONError(w, http.StatusConflict, "NOT_COMBINABLE", err.Error(), nil)
	case errors.Is(err, ErrMutuallyExclusiveDiscount):
		common.JSONError(w, http.StatusConflict, "MUTUALLY_EXCLUSIVE_DISCOUNT", err.Error(), nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrInvalidLineItem), errors.Is(err, ErrInvalidPriceRule):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated by another request", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}
