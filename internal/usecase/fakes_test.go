package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
	"github.com/PeterNgeno/sangpoint-payments/internal/provider/daraja"
)

func testPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		CountryCode:          "254",
		CallbackBaseURL:      "https://pay.example.com",
		RequireCallbackToken: true,
		IdempotencyTTL:       time.Minute,
	}
}

// fakeStore is an in-memory PaymentStore with the same conditional-update
// semantics as the Postgres implementation.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]*domain.PaymentRecord
	failCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*domain.PaymentRecord)}
}

func (s *fakeStore) Create(ctx context.Context, record *domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate {
		return &domain.StoreFailure{Op: "create", Err: fmt.Errorf("store down")}
	}
	for _, existing := range s.records {
		if existing.IdempotencyKey == record.IdempotencyKey {
			return &domain.StoreFailure{Op: "create", Err: fmt.Errorf("duplicate idempotency key")}
		}
	}

	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) GetByProviderRef(ctx context.Context, providerRef string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.ProviderReference != nil && *record.ProviderReference == providerRef {
			clone := *record
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.IdempotencyKey == key {
			clone := *record
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) Finalize(ctx context.Context, id string, status domain.PaymentStatus, resultDescription string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.Status != domain.PaymentStatusPending {
		return false, nil
	}
	record.Status = status
	record.ResultDescription = &resultDescription
	record.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) only() *domain.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		clone := *record
		return &clone
	}
	return nil
}

type fakeTokens struct {
	cred  daraja.BearerCredential
	err   error
	calls int
}

func (f *fakeTokens) Token(ctx context.Context) (daraja.BearerCredential, error) {
	f.calls++
	if f.err != nil {
		return daraja.BearerCredential{}, f.err
	}
	return f.cred, nil
}

type fakeSubmitter struct {
	ref      string
	err      error
	calls    int
	lastPush daraja.PushRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, push daraja.PushRequest, cred daraja.BearerCredential) (string, error) {
	f.calls++
	f.lastPush = push
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

type fakeReserver struct {
	mu       sync.Mutex
	reserved map[string]bool
	deny     bool
	released []string
}

func newFakeReserver() *fakeReserver {
	return &fakeReserver{reserved: make(map[string]bool)}
}

func (f *fakeReserver) Reserve(ctx context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deny || f.reserved[key] {
		return false
	}
	f.reserved[key] = true
	return true
}

func (f *fakeReserver) Release(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.reserved, key)
	f.released = append(f.released, key)
}
