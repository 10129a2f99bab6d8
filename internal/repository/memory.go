package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/kundali-system/internal/model"
)

// MemoryRepository хранит заказы в памяти процесса. Используется, когда база данных
// не настроена, и в тестах; семантика переходов совпадает с PostgresRepository.
type MemoryRepository struct {
	mu        sync.Mutex
	orders    map[string]*model.PaymentOrder
	byPayment map[string]string
	now       func() time.Time
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[string]*model.PaymentOrder),
		byPayment: make(map[string]string),
		now:       time.Now,
	}
}

// Ping всегда успешен.
func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close ничего не освобождает.
func (m *MemoryRepository) Close() error {
	return nil
}

// CreateOrder сохраняет новый заказ в статусе created.
func (m *MemoryRepository) CreateOrder(ctx context.Context, o *model.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
	}

	o.Status = model.OrderStatusCreated
	o.CreatedAt = m.now().UTC()

	stored := *o
	m.orders[o.ID] = &stored
	return nil
}

// GetOrder возвращает копию заказа по идентификатору.
func (m *MemoryRepository) GetOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// GetOrderByPaymentID возвращает копию заказа, к которому привязан платёж.
func (m *MemoryRepository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPayment[paymentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *m.orders[id]
	return &cp, nil
}

// MarkPaid переводит заказ в статус paid и привязывает к нему платёж.
func (m *MemoryRepository) MarkPaid(ctx context.Context, orderID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}

	if o.PaymentID == paymentID &&
		(o.Status == model.OrderStatusPaid || o.Status == model.OrderStatusCompleted) {
		return nil
	}
	if !o.Status.CanTransition(model.OrderStatusPaid) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, model.OrderStatusPaid)
	}
	if owner, taken := m.byPayment[paymentID]; taken && owner != orderID {
		return fmt.Errorf("%w: %s", ErrPaymentIDTaken, paymentID)
	}

	o.Status = model.OrderStatusPaid
	o.PaymentID = paymentID
	m.byPayment[paymentID] = orderID
	return nil
}

// MarkFailed переводит незавершённый заказ в статус failed.
func (m *MemoryRepository) MarkFailed(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status == model.OrderStatusFailed {
		return nil
	}
	if !o.Status.CanTransition(model.OrderStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, model.OrderStatusFailed)
	}

	o.Status = model.OrderStatusFailed
	return nil
}

// CompleteOrder сохраняет данные о рождении и карту и закрывает заказ.
func (m *MemoryRepository) CompleteOrder(ctx context.Context, orderID string, birth model.BirthInput, result *model.KundaliResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !o.Status.CanTransition(model.OrderStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, model.OrderStatusCompleted)
	}

	now := m.now().UTC()
	o.Status = model.OrderStatusCompleted
	o.Birth = &birth
	o.Kundali = result
	o.CompletedAt = &now
	return nil
}
