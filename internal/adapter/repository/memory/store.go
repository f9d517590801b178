// Package memory provides a mutex-guarded, transactional in-memory backing
// for the account and transfer record stores. It serializes all mutations,
// which trivially satisfies the per-account serialization requirement, and
// applies unit-of-work changes on scratch copies so a failed function leaves
// the store untouched.
package memory

import (
	"context"
	"sync"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
)

// Store holds current balances and committed transfer records.
type Store struct {
	mu       sync.Mutex
	accounts map[int64]domain.Account
	records  map[string]domain.TransferRecord // keyed by event key
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]domain.Account),
		records:  make(map[string]domain.TransferRecord),
	}
}

// PutAccount inserts or replaces an account. Provisioning is external to the
// pipeline, so this is the seam through which tests and bootstrap code load
// accounts.
func (s *Store) PutAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
}

// Records returns a snapshot of all committed transfer records.
func (s *Store) Records() []domain.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TransferRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}

	return out
}

// Accounts returns a repository view over the live store.
func (s *Store) Accounts() domain.AccountRepository {
	return &accountRepository{store: s}
}

// UnitOfWork returns a unit of work over the live store.
func (s *Store) UnitOfWork() domain.UnitOfWork {
	return &unitOfWork{store: s}
}

// accountRepository implements domain.AccountRepository outside a transaction
type accountRepository struct {
	store *Store
}

func (r *accountRepository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	account, ok := r.store.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	return &account, nil
}

func (r *accountRepository) Save(_ context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.accounts[account.ID]; !ok {
		return domain.ErrAccountNotFound
	}

	r.store.accounts[account.ID] = *account

	return nil
}

// unitOfWork implements domain.UnitOfWork by holding the store lock for the
// whole function and applying writes on scratch copies.
type unitOfWork struct {
	store *Store
}

func (u *unitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, stores domain.Stores) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	scratchAccounts := make(map[int64]domain.Account, len(u.store.accounts))
	for id, account := range u.store.accounts {
		scratchAccounts[id] = account
	}

	scratchRecords := make(map[string]domain.TransferRecord, len(u.store.records))
	for key, record := range u.store.records {
		scratchRecords[key] = record
	}

	stores := domain.Stores{
		Accounts: &txAccountRepository{accounts: scratchAccounts},
		Records:  &txRecordRepository{records: scratchRecords},
	}

	if err := fn(ctx, stores); err != nil {
		return err
	}

	u.store.accounts = scratchAccounts
	u.store.records = scratchRecords

	return nil
}

// txAccountRepository operates on the scratch copy; the store lock is
// already held by the unit of work.
type txAccountRepository struct {
	accounts map[int64]domain.Account
}

func (r *txAccountRepository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	return &account, nil
}

func (r *txAccountRepository) Save(_ context.Context, account *domain.Account) error {
	if _, ok := r.accounts[account.ID]; !ok {
		return domain.ErrAccountNotFound
	}

	r.accounts[account.ID] = *account

	return nil
}

// txRecordRepository operates on the scratch copy of the record map.
type txRecordRepository struct {
	records map[string]domain.TransferRecord
}

func (r *txRecordRepository) Append(_ context.Context, record *domain.TransferRecord) error {
	if _, ok := r.records[record.EventKey]; ok {
		return domain.ErrDuplicateEventKey
	}

	r.records[record.EventKey] = *record

	return nil
}

func (r *txRecordRepository) ExistsByEventKey(_ context.Context, eventKey string) (bool, error) {
	_, ok := r.records[eventKey]

	return ok, nil
}
