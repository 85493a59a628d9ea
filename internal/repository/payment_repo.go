package repository

import (
	"context"
	"errors"

	"github.com/PeterNgeno/sangpoint-payments/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentStore is the durable home of payment records. Finalize must be a
// conditional update: it only fires while the record is still pending and
// reports whether a row actually changed, so duplicate callbacks no-op
// instead of erroring.
type PaymentStore interface {
	Create(ctx context.Context, record *domain.PaymentRecord) error
	GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*domain.PaymentRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error)
	Finalize(ctx context.Context, id string, status domain.PaymentStatus, resultDescription string) (bool, error)
}

type paymentStore struct {
	db *pgxpool.Pool
}

func NewPaymentStore(db *pgxpool.Pool) PaymentStore {
	return &paymentStore{db: db}
}

const paymentColumns = `
	id, user_id, amount, phone_number, purpose, status,
	provider_reference, idempotency_key, callback_token,
	result_description, created_at, updated_at
`

func (s *paymentStore) Create(ctx context.Context, record *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (
			id, user_id, amount, phone_number, purpose, status,
			provider_reference, idempotency_key, callback_token, result_description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		record.ID,
		record.UserID,
		record.Amount,
		record.PhoneNumber,
		record.Purpose,
		record.Status,
		record.ProviderReference,
		record.IdempotencyKey,
		record.CallbackToken,
		record.ResultDescription,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return &domain.StoreFailure{Op: "create", Err: err}
	}
	return nil
}

func (s *paymentStore) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return s.scanOne(s.db.QueryRow(ctx, query, id), "get")
}

func (s *paymentStore) GetByProviderRef(ctx context.Context, providerRef string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_reference = $1`
	return s.scanOne(s.db.QueryRow(ctx, query, providerRef), "get_by_provider_ref")
}

func (s *paymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	return s.scanOne(s.db.QueryRow(ctx, query, key), "get_by_idempotency_key")
}

// Finalize moves a pending record to a terminal status. The WHERE clause
// guards the transition: once terminal, later callbacks match zero rows.
func (s *paymentStore) Finalize(ctx context.Context, id string, status domain.PaymentStatus, resultDescription string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2, result_description = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := s.db.Exec(ctx, query, id, status, resultDescription)
	if err != nil {
		return false, &domain.StoreFailure{Op: "finalize", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

func (s *paymentStore) scanOne(row pgx.Row, op string) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Amount,
		&record.PhoneNumber,
		&record.Purpose,
		&record.Status,
		&record.ProviderReference,
		&record.IdempotencyKey,
		&record.CallbackToken,
		&record.ResultDescription,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StoreFailure{Op: op, Err: err}
	}
	return &record, nil
}
