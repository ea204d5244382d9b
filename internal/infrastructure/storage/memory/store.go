// Package memory provides an in-process implementation of every ledger
// repository, the atomic unit coordinator and the sequence generator.
//
// Units are serialized: one unit holds the store at a time. The state is
// snapshotted when a unit begins and restored when it fails, so a failed
// unit leaves nothing behind. The store backs the test suite and
// STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/journal"
	"stockledger/internal/domain/ledger"
)

var (
	_ tx.ReadOnlyManager    = (*Store)(nil)
	_ numerator.Generator   = (*Store)(nil)
	_ domain.EventPublisher = (*Store)(nil)
	_ audit.Trail           = (*Store)(nil)
)

// errNoUnit is returned by operations that need the row locks of a unit.
var errNoUnit = errors.New("memory: operation requires an atomic unit")

// FailureFunc is consulted before every write. A non-nil error aborts the
// write and, through it, the unit.
type FailureFunc func(op string) error

type state struct {
	balances  map[string]balance.Balance
	openings  map[id.ID]balance.OpeningStock
	entries   map[id.ID]ledger.Entry
	journals  map[id.ID]journal.Document
	lines     map[id.ID][]journal.Line
	sequences map[string]int64
	events    []domain.Event
	audit     []audit.Record
}

func newState() state {
	return state{
		balances:  make(map[string]balance.Balance),
		openings:  make(map[id.ID]balance.OpeningStock),
		entries:   make(map[id.ID]ledger.Entry),
		journals:  make(map[id.ID]journal.Document),
		lines:     make(map[id.ID][]journal.Line),
		sequences: make(map[string]int64),
	}
}

func (st state) clone() state {
	c := state{
		balances:  make(map[string]balance.Balance, len(st.balances)),
		openings:  make(map[id.ID]balance.OpeningStock, len(st.openings)),
		entries:   make(map[id.ID]ledger.Entry, len(st.entries)),
		journals:  make(map[id.ID]journal.Document, len(st.journals)),
		lines:     make(map[id.ID][]journal.Line, len(st.lines)),
		sequences: make(map[string]int64, len(st.sequences)),
		events:    append([]domain.Event(nil), st.events...),
		audit:     append([]audit.Record(nil), st.audit...),
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.openings {
		c.openings[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.journals {
		c.journals[k] = v
	}
	for k, v := range st.lines {
		c.lines[k] = append([]journal.Line(nil), v...)
	}
	for k, v := range st.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store is the in-memory storage engine.
type Store struct {
	mu      sync.Mutex
	st      state
	failure FailureFunc
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Balances returns the balance repository.
func (s *Store) Balances() *BalanceRepository { return &BalanceRepository{store: s} }

// Ledger returns the ledger entry repository.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{store: s} }

// Journals returns the journal repository.
func (s *Store) Journals() *JournalRepository { return &JournalRepository{store: s} }

// SetFailure installs a failure hook; nil removes it.
func (s *Store) SetFailure(f FailureFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = f
}

// FailOnCall returns a FailureFunc that fails the n-th write of op (1-based).
func FailOnCall(op string, n int, err error) FailureFunc {
	var mu sync.Mutex
	calls := 0
	return func(got string) error {
		if got != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == n {
			return err
		}
		return nil
	}
}

// OpRecorder records every op passed to the failure hook, in order.
type OpRecorder struct {
	mu  sync.Mutex
	ops []string
}

// Hook returns a FailureFunc that records ops and never fails.
func (r *OpRecorder) Hook() FailureFunc {
	return func(op string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ops = append(r.ops, op)
		return nil
	}
}

// Reset forgets the recorded ops.
func (r *OpRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

// Ops returns a copy of the recorded ops.
func (r *OpRecorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// LateBalanceLocks returns the balance keys whose first lock came after a
// sequence row was taken. Re-locking a key already held is not late.
func (r *OpRecorder) LateBalanceLocks() []string {
	held := make(map[string]bool)
	sequenced := false
	var late []string
	for _, op := range r.Ops() {
		switch {
		case strings.HasPrefix(op, "sequence.next:"):
			sequenced = true
		case strings.HasPrefix(op, "balance.lock:"):
			key := strings.TrimPrefix(op, "balance.lock:")
			if sequenced && !held[key] {
				late = append(late, key)
			}
			held[key] = true
		}
	}
	return late
}

type unitKey struct{}

type unit struct {
	store *Store
}

func (s *Store) inUnit(ctx context.Context) bool {
	u, ok := ctx.Value(unitKey{}).(*unit)
	return ok && u.store == s
}

// read runs fn against the state, joining the unit in ctx or taking the
// store lock for the duration of fn.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if s.inUnit(ctx) {
		return fn(&s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

// write is read preceded by the failure hook.
func (s *Store) write(ctx context.Context, op string, fn func(st *state) error) error {
	return s.read(ctx, func(st *state) error {
		if s.failure != nil {
			if err := s.failure(op); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return fn(st)
	})
}

// RunInTransaction implements tx.Manager.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inUnit(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()

	if err := fn(context.WithValue(ctx, unitKey{}, &unit{store: s})); err != nil {
		return apperror.Classify(err)
	}
	if err := ctx.Err(); err != nil {
		return apperror.Classify(fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// ReadOnly implements tx.ReadOnlyManager.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// Next implements numerator.Generator with one counter per entity type.
func (s *Store) Next(ctx context.Context, entityType string) (int64, error) {
	if entityType == "" {
		return 0, apperror.NewFieldValidation("entity_type", "is required")
	}
	var next int64
	err := s.write(ctx, "sequence.next:"+entityType, func(st *state) error {
		st.sequences[entityType]++
		next = st.sequences[entityType]
		return nil
	})
	return next, err
}

// Publish implements domain.EventPublisher.
func (s *Store) Publish(ctx context.Context, event domain.Event) error {
	return s.write(ctx, "outbox.publish", func(st *state) error {
		st.events = append(st.events, event)
		return nil
	})
}

// LogChange implements audit.Logger.
func (s *Store) LogChange(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	return s.write(ctx, "audit.log", func(st *state) error {
		st.audit = append(st.audit, audit.Record{
			ID:         id.New(),
			EntityType: entityType,
			EntityID:   entityID,
			Action:     action,
			UserID:     appctx.GetUserID(ctx),
			Changes:    raw,
			CreatedAt:  time.Now().UTC(),
		})
		return nil
	})
}

// History implements audit.Reader.
func (s *Store) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Record, error) {
	var out []audit.Record
	_ = s.read(ctx, func(st *state) error {
		for i := len(st.audit) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			r := st.audit[i]
			if r.EntityType == entityType && r.EntityID == entityID {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, nil
}

// Events returns the committed events in publish order.
func (s *Store) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.st.events...)
}

// AuditRecords returns the committed audit entries.
func (s *Store) AuditRecords() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.st.audit...)
}

// EntryCount reports how many ledger entries are stored.
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.entries)
}

// JournalCount reports how many journals are stored.
func (s *Store) JournalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.journals)
}

func paginate[T any](items []T, f domain.ListFilter) domain.ListResult[T] {
	f = f.Normalize()
	total := len(items)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return domain.ListResult[T]{
		Items:      items[start:end],
		TotalCount: int64(total),
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
}
