// Package ledger owns the two stateful stores of the application: the ordered
// list of entries and the display settings. Both mirror every mutation to a
// storage.KeyValueStore before it becomes visible in memory.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/storage"
)

// Storage keys, kept compatible with the browser version's localStorage keys.
const (
	EntriesKey  = "budget-tracker-data-v1"
	SettingsKey = "budget-tracker-settings-v1"
)

type (
	// IDGenerator returns a new opaque identifier.
	IDGenerator func() string

	// Clock returns the current time.
	Clock func() time.Time

	Option func(*EntryStore)
)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *EntryStore) { s.newID = gen }
}

// WithClock replaces the wall clock used for creation stamps and "today".
func WithClock(clock Clock) Option {
	return func(s *EntryStore) { s.now = clock }
}

// Draft is the user input for a new entry. Zero ID, Date and CreatedAt are
// filled in by the store.
type Draft struct {
	ID        string
	Kind      core.Kind
	Title     string
	Amount    core.Money
	Category  string
	Date      core.Date
	CreatedAt int64
}

// ImportResult reports how many records of an import were kept.
type ImportResult struct {
	Imported int
	Dropped  int
}

// EntryStore is the ordered, most-recent-first list of entries.
type EntryStore struct {
	mu          sync.Mutex
	kv          storage.KeyValueStore
	entries     []core.Entry
	newID       IDGenerator
	now         Clock
	lastCreated int64
	revision    uint64
}

// Open loads the entry list from kv. A missing key is an empty ledger.
func Open(ctx context.Context, kv storage.KeyValueStore, opts ...Option) (*EntryStore, error) {
	s := &EntryStore{
		kv:    kv,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := kv.Get(ctx, EntriesKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load entries: %w", err)
	}

	if err := json.Unmarshal(raw, &s.entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	for _, e := range s.entries {
		s.lastCreated = max(s.lastCreated, e.CreatedAt)
	}
	slog.InfoContext(ctx, "Entries loaded", "count", len(s.entries))
	return s, nil
}

// Add validates the draft, completes it and inserts it at the head of the list.
func (s *EntryStore) Add(ctx context.Context, d Draft) (core.Entry, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return core.Entry{}, core.ErrEmptyTitle
	}
	if err := d.Amount.Validate(); err != nil {
		return core.Entry{}, err
	}
	if !d.Kind.Valid() {
		return core.Entry{}, fmt.Errorf("%w: %q", core.ErrInvalidKind, d.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := core.Entry{
		ID:        d.ID,
		Kind:      d.Kind,
		Title:     title,
		Amount:    d.Amount,
		Category:  strings.TrimSpace(d.Category),
		Date:      d.Date,
		CreatedAt: d.CreatedAt,
	}
	if e.Category == "" {
		e.Category = e.Kind.DefaultCategory()
	}
	if e.Date.IsZero() {
		e.Date = core.Today(s.now())
	}
	if e.ID == "" || s.indexOf(e.ID) >= 0 {
		e.ID = s.freshID(nil)
	}
	if e.CreatedAt <= 0 {
		e.CreatedAt = s.stamp()
	} else {
		s.lastCreated = max(s.lastCreated, e.CreatedAt)
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}

	next := make([]core.Entry, 0, len(s.entries)+1)
	next = append(next, e)
	next = append(next, s.entries...)
	if err := s.commit(ctx, next); err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "Entry added",
		"id", e.ID,
		"kind", e.Kind,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.String())
	return e, nil
}

// Remove deletes the entry with the given id. An unknown id leaves the list
// unchanged and is not an error.
func (s *EntryStore) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]core.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.ID != id {
			next = append(next, e)
		}
	}
	removed := len(next) != len(s.entries)
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Entry remove", "id", id, "removed", removed)
	return removed, nil
}

// Clear empties the ledger.
func (s *EntryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.entries)
	if err := s.commit(ctx, []core.Entry{}); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Ledger cleared", "removed", count)
	return nil
}

// ImportMerge coerces loosely typed records into entries and prepends the
// valid ones. A nil slice means the payload was not a list and is rejected
// without touching the ledger.
func (s *EntryStore) ImportMerge(ctx context.Context, records []map[string]any) (ImportResult, error) {
	if records == nil {
		return ImportResult{}, core.ErrNotAList
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(map[string]bool, len(s.entries)+len(records))
	for _, e := range s.entries {
		taken[e.ID] = true
	}

	var res ImportResult
	cleaned := make([]core.Entry, 0, len(records))
	for _, rec := range records {
		e, ok := s.coerce(rec, taken)
		if !ok {
			res.Dropped++
			continue
		}
		taken[e.ID] = true
		cleaned = append(cleaned, e)
	}
	res.Imported = len(cleaned)

	next := append(cleaned, s.entries...)
	if err := s.commit(ctx, next); err != nil {
		return ImportResult{}, err
	}
	slog.InfoContext(ctx, "Entries imported", "imported", res.Imported, "dropped", res.Dropped)
	return res, nil
}

// All returns a copy of the entries, most recently created first.
func (s *EntryStore) All(_ context.Context) []core.Entry {
	s.mu.Lock()
	out := make([]core.Entry, len(s.entries))
	copy(out, s.entries)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// Len returns the number of stored entries.
func (s *EntryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Revision changes after every successful mutation.
func (s *EntryStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Now returns the store's notion of the current time.
func (s *EntryStore) Now() time.Time {
	return s.now()
}

// commit persists next and only then makes it the current list.
// Callers hold s.mu.
func (s *EntryStore) commit(ctx context.Context, next []core.Entry) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	if err := s.kv.Put(ctx, EntriesKey, payload); err != nil {
		return fmt.Errorf("persist entries: %w", err)
	}
	s.entries = next
	s.revision++
	return nil
}

// stamp returns a creation marker strictly greater than every previous one.
func (s *EntryStore) stamp() int64 {
	ms := s.now().UnixMilli()
	if ms <= s.lastCreated {
		ms = s.lastCreated + 1
	}
	s.lastCreated = ms
	return ms
}

func (s *EntryStore) freshID(taken map[string]bool) string {
	for {
		id := s.newID()
		if id != "" && !taken[id] && s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *EntryStore) indexOf(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
