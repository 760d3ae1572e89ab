package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Identity Repo ---

type inMemoryIdentityRepo struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*domain.Identity
}

func newInMemoryIdentityRepo() *inMemoryIdentityRepo {
	return &inMemoryIdentityRepo{identities: make(map[uuid.UUID]*domain.Identity)}
}

func (r *inMemoryIdentityRepo) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.Email == i.Email {
			return fmt.Errorf("email already exists")
		}
	}
	cp := *i
	r.identities[i.ID] = &cp
	return nil
}

func (r *inMemoryIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.identities[id]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (r *inMemoryIdentityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.identities {
		if i.Email == email {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Wallet Repo ---

// inMemoryWalletRepo enforces the same version guard and non-negative
// balance rule as the SQL schema, atomically under one mutex.
type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.IdentityID == identityID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.WalletNumber == walletNumber {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) GetByNumberTx(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error) {
	return r.GetByNumber(ctx, walletNumber)
}

func (r *inMemoryWalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	if w.Version != expectedVersion {
		return ports.ErrVersionConflict
	}
	if w.Balance+delta < 0 {
		return fmt.Errorf("balance would go negative")
	}
	w.Balance += delta
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryWalletRepo) SumBalances(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, w := range r.wallets {
		total += w.Balance
	}
	return total, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Reference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	return r.GetByReference(ctx, reference)
}

func (r *inMemoryTransactionRepo) MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, externalRef *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	if t.Status != domain.TransactionStatusPending {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	t.Status = status
	if externalRef != nil {
		t.ExternalRef = externalRef
	}
	now := time.Now().UTC()
	t.ProcessedAt = &now
	return nil
}

func (r *inMemoryTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID == walletID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.Transaction{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *inMemoryTransactionRepo) ListStalePendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.Type == domain.TransactionTypeDeposit &&
			t.Status == domain.TransactionStatusPending &&
			t.CreatedAt.Before(olderThan) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- In-Memory API Key Repo ---

type inMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.APIKey
}

func newInMemoryAPIKeyRepo() *inMemoryAPIKeyRepo {
	return &inMemoryAPIKeyRepo{keys: make(map[uuid.UUID]*domain.APIKey)}
}

func (r *inMemoryAPIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.ID] = &cp
	return nil
}

func (r *inMemoryAPIKeyRepo) CreateTx(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	return r.Create(ctx, key)
}

func (r *inMemoryAPIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (r *inMemoryAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAPIKeyRepo) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.APIKey
	for _, k := range r.keys {
		if k.IdentityID == identityID {
			result = append(result, *k)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *inMemoryAPIKeyRepo) CountActive(ctx context.Context, identityID uuid.UUID, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, k := range r.keys {
		if k.IdentityID == identityID && k.IsUsable(now) {
			count++
		}
	}
	return count, nil
}

func (r *inMemoryAPIKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return fmt.Errorf("api key not found: %s", id)
	}
	k.Revoked = true
	return nil
}

func (r *inMemoryAPIKeyRepo) RevokeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.Revoke(ctx, id)
}

// --- In-Memory Webhook Event Repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.RWMutex
	events map[string]*domain.WebhookEvent
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[string]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Insert(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.EventID]; exists {
		return false, nil
	}
	cp := *event
	r.events[event.EventID] = &cp
	return true, nil
}

func (r *inMemoryWebhookEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor hands out transactions that hold one global lock from
// Begin to Commit or Rollback. The map-backed repos cannot undo writes, so
// serializing transactions is what keeps multi-step units atomic here, the
// way the database transaction does in production.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx is a pgx.Tx that only tracks the global lock; the repos ignore it.
type serialTx struct {
	release *sync.Mutex
	done    bool
}

func (t *serialTx) Commit(ctx context.Context) error {
	if !t.done {
		t.done = true
		t.release.Unlock()
	}
	return nil
}

func (t *serialTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.done = true
		t.release.Unlock()
	}
	return nil
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }
