// Package service реализует конвейер заказа: оплата, проверка платежа и построение кундали.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/kundali-system/internal/astrology"
	"github.com/mmeshcher/kundali-system/internal/kundali"
	"github.com/mmeshcher/kundali-system/internal/metrics"
	"github.com/mmeshcher/kundali-system/internal/model"
	"github.com/mmeshcher/kundali-system/internal/payment"
	"github.com/mmeshcher/kundali-system/internal/repository"
	"github.com/mmeshcher/kundali-system/internal/validation"
)

var (
	// ErrVerificationFailed возвращается при неверной подписи или неизвестном заказе.
	ErrVerificationFailed = errors.New("payment verification failed")
	// ErrPaymentNotVerified возвращается, если платёж не найден или не подтверждён.
	ErrPaymentNotVerified = errors.New("payment not verified")
	// ErrProviderAuth возвращается, если провайдер отклонил учётные данные сервиса.
	ErrProviderAuth = errors.New("astrology provider authentication failed")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error
	CreateOrder(ctx context.Context, o *model.PaymentOrder) error
	GetOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.PaymentOrder, error)
	MarkPaid(ctx context.Context, orderID, paymentID string) error
	MarkFailed(ctx context.Context, orderID string) error
	CompleteOrder(ctx context.Context, orderID string, birth model.BirthInput, result *model.KundaliResult) error
}

// Gateway описывает провайдера астрологических данных.
type Gateway interface {
	FetchChart(ctx context.Context, req astrology.ChartRequest) (*astrology.ProviderResponse, error)
}

// PaymentKeys содержит ключи платёжного шлюза.
type PaymentKeys struct {
	KeyID     string
	KeySecret string
}

// Service содержит бизнес-логику конвейера заказов.
type Service struct {
	repo    Repository
	gateway Gateway
	keys    PaymentKeys
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService создаёт сервис. gateway может быть nil, тогда все карты строятся резервным генератором.
func NewService(repo Repository, gateway Gateway, keys PaymentKeys, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		keys:    keys,
		metrics: m,
		logger:  logger,
	}
}

// Ping проверяет доступность хранилища заказов.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateOrder создаёт платёжный заказ и возвращает данные для платёжного виджета.
func (s *Service) CreateOrder(ctx context.Context, amount int64, currency, description string) (*model.CheckoutOrder, error) {
	currency, err := validation.ValidateOrder(amount, currency)
	if err != nil {
		return nil, err
	}

	o := &model.PaymentOrder{
		ID:          payment.NewOrderID(),
		Amount:      amount,
		Currency:    currency,
		Receipt:     payment.NewReceipt(),
		Description: description,
		Status:      model.StagePaymentPending.Status(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.OrderCreated()
	s.logStage(o.ID, model.StagePaymentPending)

	return &model.CheckoutOrder{
		OrderID:   o.ID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		PublicKey: s.keys.KeyID,
	}, nil
}

// VerifyPayment проверяет подпись платежа и привязывает платёж к заказу.
func (s *Service) VerifyPayment(ctx context.Context, v model.PaymentVerification) error {
	if err := validation.ValidateVerification(v); err != nil {
		s.metrics.PaymentVerified(false)
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	o, err := s.repo.GetOrder(ctx, v.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.metrics.PaymentVerified(false)
			s.logger.Warn("payment verification for unknown order", zap.String("order_id", v.OrderID))
			return ErrVerificationFailed
		}
		return fmt.Errorf("get order: %w", err)
	}

	if !payment.Verify(v.OrderID, v.PaymentID, v.Signature, s.keys.KeySecret) {
		s.metrics.PaymentVerified(false)
		s.logger.Warn("payment signature mismatch",
			zap.String("order_id", o.ID),
			zap.String("payment_id", v.PaymentID),
		)
		s.fail(ctx, o)
		return ErrVerificationFailed
	}

	if err := s.repo.MarkPaid(ctx, o.ID, v.PaymentID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrPaymentIDTaken) {
			s.metrics.PaymentVerified(false)
			return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
		return fmt.Errorf("mark paid: %w", err)
	}

	s.metrics.PaymentVerified(true)
	s.logStage(o.ID, model.StageVerified)
	return nil
}

// fail переводит ожидающий оплаты заказ в failed. Оплаченные заказы не трогаются.
func (s *Service) fail(ctx context.Context, o *model.PaymentOrder) {
	if model.StageOf(o.Status) != model.StagePaymentPending {
		return
	}
	if err := s.repo.MarkFailed(ctx, o.ID); err != nil {
		s.logger.Error("failed to mark order failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	s.logStage(o.ID, model.StageFailed)
}

// GenerateKundali строит карту для оплаченного заказа.
// Ошибки провайдера, кроме отказа в авторизации и отмены запроса, заменяются резервной картой.
func (s *Service) GenerateKundali(ctx context.Context, in model.BirthInput) (*model.KundaliResult, error) {
	in, err := validation.NormalizeKundaliRequest(in)
	if err != nil {
		return nil, err
	}

	o, err := s.repo.GetOrderByPaymentID(ctx, in.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrPaymentNotVerified
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	switch model.StageOf(o.Status) {
	case model.StageGenerated:
		if o.Kundali != nil {
			return o.Kundali, nil
		}
		return nil, ErrPaymentNotVerified
	case model.StageVerified:
	default:
		return nil, ErrPaymentNotVerified
	}

	result, err := s.chart(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CompleteOrder(ctx, o.ID, in, result); err != nil {
		if !errors.Is(err, repository.ErrInvalidTransition) {
			return nil, fmt.Errorf("complete order: %w", err)
		}
		// Параллельный запрос успел завершить заказ первым.
		stored, getErr := s.repo.GetOrder(ctx, o.ID)
		if getErr == nil && stored.Kundali != nil {
			return stored.Kundali, nil
		}
		return nil, fmt.Errorf("complete order: %w", err)
	}

	s.metrics.KundaliGenerated(result.Source)
	s.logStage(o.ID, model.StageGenerated)
	return result, nil
}

func (s *Service) chart(ctx context.Context, in model.BirthInput) (*model.KundaliResult, error) {
	err := astrology.ErrNotConfigured
	if s.gateway != nil {
		var resp *astrology.ProviderResponse
		resp, err = s.gateway.FetchChart(ctx, astrology.NewChartRequest(in))
		if err == nil {
			var result *model.KundaliResult
			result, err = kundali.Normalize(resp, in)
			if err == nil {
				return result, nil
			}
		}
	}

	s.metrics.ProviderFailure(err)

	if errors.Is(err, astrology.ErrAuthFailed) {
		s.logger.Error("astrology provider rejected credentials", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderAuth, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.logger.Warn("serving fallback kundali",
		zap.String("payment_id", in.PaymentID),
		zap.String("reason", metrics.ClassifyProviderError(err)),
		zap.Error(err),
	)
	return kundali.Fallback(in), nil
}

func (s *Service) logStage(orderID string, stage model.Stage) {
	s.logger.Info("order stage changed",
		zap.String("order_id", orderID),
		zap.String("stage", string(stage)),
	)
}
