// Package handler содержит HTTP-обработчики API сервиса кундали.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/kundali-system/internal/model"
	"github.com/mmeshcher/kundali-system/internal/service"
	"github.com/mmeshcher/kundali-system/internal/validation"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 2 * time.Second
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, amount int64, currency, description string) (*model.CheckoutOrder, error)
	VerifyPayment(ctx context.Context, v model.PaymentVerification) error
	GenerateKundali(ctx context.Context, in model.BirthInput) (*model.KundaliResult, error)
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API сервиса кундали.
type Handler struct {
	service Service
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metrics может быть nil, тогда /metrics не публикуется.
func NewHandler(s Service, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		metrics: metrics,
	}
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// CreateOrder создаёт платёжный заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.Amount, req.Currency, req.Description)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationError(w, verrs)
			return
		}
		h.logger.Error("create order error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

type verifyRequest struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Signature string `json:"signature"`

	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (req verifyRequest) verification() model.PaymentVerification {
	return model.PaymentVerification{
		PaymentID: firstNonEmpty(req.PaymentID, req.RazorpayPaymentID),
		OrderID:   firstNonEmpty(req.OrderID, req.RazorpayOrderID),
		Signature: firstNonEmpty(req.Signature, req.RazorpaySignature),
	}
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyPayment проверяет подпись платежа.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, verifyResponse{Message: "Payment verification failed"})
		return
	}

	err := h.service.VerifyPayment(r.Context(), req.verification())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyResponse{Success: true, Message: "Payment verified successfully"})
	case errors.Is(err, service.ErrVerificationFailed):
		writeJSON(w, http.StatusBadRequest, verifyResponse{Message: "Payment verification failed"})
	default:
		h.logger.Error("verify payment error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to verify payment")
	}
}

// GenerateKundali строит карту для оплаченного заказа.
func (h *Handler) GenerateKundali(w http.ResponseWriter, r *http.Request) {
	var req model.BirthInput
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.GenerateKundali(r.Context(), req)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			writeValidationError(w, verrs)
		case errors.Is(err, service.ErrPaymentNotVerified):
			writeError(w, http.StatusBadRequest, "payment not verified")
		case errors.Is(err, service.ErrProviderAuth):
			h.logger.Error("generate kundali: provider authentication", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "astrology provider authentication failed")
		case errors.Is(err, context.Canceled):
			h.logger.Info("generate kundali canceled by client")
		default:
			h.logger.Error("generate kundali error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to generate kundali")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health сообщает о готовности сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: now})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: now})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeValidationError(w, validation.Errors{typeErr.Field: "must be " + jsonTypeName(typeErr.Type)})
		return false
	}

	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func jsonTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Bool:
		return "a boolean"
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}

func writeValidationError(w http.ResponseWriter, verrs validation.Errors) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: verrs})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
