// Package repository содержит хранилища платёжных заказов: PostgreSQL и in-memory.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/kundali-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при повторном создании заказа с тем же идентификатором.
	ErrOrderExists = errors.New("order already exists")
	// ErrPaymentIDTaken возвращается, если платёж уже привязан к другому заказу.
	ErrPaymentIDTaken = errors.New("payment already bound to another order")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

const orderColumns = `id, payment_id, amount, currency, receipt, description, status,
	full_name, date_of_birth, time_of_birth, place_of_birth, latitude, longitude, time_unknown,
	kundali_data, created_at, completed_at`

// PostgresRepository предоставляет доступ к заказам в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil || i == len(delays) || !isRetryable(err) {
			return err
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Ping проверяет доступность базы данных.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateOrder сохраняет новый заказ в статусе created.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.PaymentOrder) error {
	return r.withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO kundali_orders (id, amount, currency, receipt, description, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			o.ID, o.Amount, o.Currency, o.Receipt, o.Description, string(model.OrderStatusCreated),
		).Scan(&o.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		o.Status = model.OrderStatusCreated
		return nil
	})
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM kundali_orders WHERE id = $1`,
		orderID,
	)
	return scanOrder(row)
}

// GetOrderByPaymentID возвращает заказ, к которому привязан платёж.
func (r *PostgresRepository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.PaymentOrder, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM kundali_orders WHERE payment_id = $1`,
		paymentID,
	)
	return scanOrder(row)
}

// MarkPaid переводит заказ в статус paid и привязывает к нему платёж.
// Повторная отметка тем же платежом не считается ошибкой.
func (r *PostgresRepository) MarkPaid(ctx context.Context, orderID, paymentID string) error {
	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE kundali_orders SET status = $3, payment_id = $2
			 WHERE id = $1 AND status = $4`,
			orderID, paymentID, string(model.OrderStatusPaid), string(model.OrderStatusCreated),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrPaymentIDTaken, paymentID)
			}
			return fmt.Errorf("mark order paid: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		current, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.PaymentID == paymentID &&
			(current.Status == model.OrderStatusPaid || current.Status == model.OrderStatusCompleted) {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, model.OrderStatusPaid)
	})
}

// MarkFailed переводит незавершённый заказ в статус failed.
func (r *PostgresRepository) MarkFailed(ctx context.Context, orderID string) error {
	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE kundali_orders SET status = $2
			 WHERE id = $1 AND status IN ($3, $4)`,
			orderID, string(model.OrderStatusFailed),
			string(model.OrderStatusCreated), string(model.OrderStatusPaid),
		)
		if err != nil {
			return fmt.Errorf("mark order failed: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		current, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status == model.OrderStatusFailed {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, model.OrderStatusFailed)
	})
}

// CompleteOrder сохраняет данные о рождении и построенную карту и закрывает заказ.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, orderID string, birth model.BirthInput, result *model.KundaliResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode kundali: %w", err)
	}

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE kundali_orders
			 SET status = $2, full_name = $3, date_of_birth = $4, time_of_birth = $5,
			     place_of_birth = $6, latitude = $7, longitude = $8, time_unknown = $9,
			     kundali_source = $10, kundali_data = $11, completed_at = NOW()
			 WHERE id = $1 AND status = $12`,
			orderID, string(model.OrderStatusCompleted),
			birth.FullName, birth.DateOfBirth, birth.TimeOfBirth, birth.PlaceOfBirth,
			birth.Latitude, birth.Longitude, birth.TimeUnknown,
			string(result.Source), data,
			string(model.OrderStatusPaid),
		)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		current, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, model.OrderStatusCompleted)
	})
}

func scanOrder(row pgx.Row) (*model.PaymentOrder, error) {
	var (
		o            model.PaymentOrder
		paymentID    *string
		status       string
		fullName     *string
		dateOfBirth  *string
		timeOfBirth  *string
		placeOfBirth *string
		latitude     *float64
		longitude    *float64
		timeUnknown  bool
		kundaliData  []byte
	)

	err := row.Scan(
		&o.ID, &paymentID, &o.Amount, &o.Currency, &o.Receipt, &o.Description, &status,
		&fullName, &dateOfBirth, &timeOfBirth, &placeOfBirth, &latitude, &longitude, &timeUnknown,
		&kundaliData, &o.CreatedAt, &o.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status = model.OrderStatus(status)
	if paymentID != nil {
		o.PaymentID = *paymentID
	}

	if dateOfBirth != nil {
		o.Birth = &model.BirthInput{
			FullName:     deref(fullName),
			DateOfBirth:  *dateOfBirth,
			TimeOfBirth:  deref(timeOfBirth),
			PlaceOfBirth: deref(placeOfBirth),
			Latitude:     latitude,
			Longitude:    longitude,
			TimeUnknown:  timeUnknown,
			PaymentID:    o.PaymentID,
		}
	}

	if len(kundaliData) > 0 {
		var k model.KundaliResult
		if err := json.Unmarshal(kundaliData, &k); err != nil {
			return nil, fmt.Errorf("decode kundali: %w", err)
		}
		o.Kundali = &k
	}

	return &o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
