package service

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/pet"
	"pet-tracker/internal/domain/tracking"
	"pet-tracker/internal/ports"
)

// syncBuffer collects log lines written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type passUoW struct{}

func (passUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passUoW) WithinReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memPets struct {
	mu   sync.Mutex
	pets map[string]pet.TrackedPet
}

func newMemPets() *memPets {
	return &memPets{pets: make(map[string]pet.TrackedPet)}
}

func (m *memPets) Create(_ context.Context, p *pet.TrackedPet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pets[p.ID] = *p
	return nil
}

func (m *memPets) GetByID(_ context.Context, ownerID, petID string) (*pet.TrackedPet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pets[petID]
	if !ok || p.OwnerID != ownerID {
		return nil, ports.ErrNotFound
	}
	return &p, nil
}

func (m *memPets) ListByOwner(_ context.Context, ownerID string) ([]pet.TrackedPet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pet.TrackedPet
	for _, p := range m.pets {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPets) ListMissing(_ context.Context, limit int) ([]pet.TrackedPet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pet.TrackedPet
	for _, p := range m.pets {
		if p.IsMissing {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b pet.TrackedPet) int { return cmp.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPets) UpdateProfile(ctx context.Context, p *pet.TrackedPet) error {
	return m.replace(p)
}

func (m *memPets) UpdateMissing(ctx context.Context, p *pet.TrackedPet) error {
	return m.replace(p)
}

func (m *memPets) replace(p *pet.TrackedPet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pets[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return ports.ErrNotFound
	}
	m.pets[p.ID] = *p
	return nil
}

func (m *memPets) Delete(_ context.Context, ownerID, petID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pets[petID]
	if !ok || cur.OwnerID != ownerID {
		return ports.ErrNotFound
	}
	delete(m.pets, petID)
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	entries map[string][]history.Entry
}

func newMemHistory() *memHistory {
	return &memHistory{entries: make(map[string][]history.Entry)}
}

func (m *memHistory) Append(_ context.Context, _, petID string, entry history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[petID] = append(m.entries[petID], entry)
	return nil
}

func (m *memHistory) ListAll(_ context.Context, _, petID string) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.entries[petID])
	history.SortDescending(out)
	return out, nil
}

func (m *memHistory) Latest(ctx context.Context, ownerID, petID string) (history.Entry, bool, error) {
	all, _ := m.ListAll(ctx, ownerID, petID)
	if len(all) == 0 {
		return history.Entry{}, false, nil
	}
	return all[0], true, nil
}

func (m *memHistory) DeleteOne(_ context.Context, _, petID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[petID] = slices.DeleteFunc(m.entries[petID], func(e history.Entry) bool { return e.ID == entryID })
	return nil
}

func (m *memHistory) DeleteAll(_ context.Context, _, petID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.entries[petID]))
	delete(m.entries, petID)
	return n, nil
}

func (m *memHistory) count(petID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[petID])
}

type fixedFeed struct {
	mu  sync.Mutex
	fix tracking.Fix
	ok  bool
}

func (f *fixedFeed) set(fix tracking.Fix, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fix, f.ok = fix, ok
}

func (f *fixedFeed) PollLatest(context.Context, string) (tracking.Fix, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fix, f.ok, nil
}

type memPositions struct {
	mu    sync.Mutex
	fixes map[string]tracking.Fix
}

func (m *memPositions) UpsertLatest(_ context.Context, deviceID string, fix tracking.Fix) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fixes == nil {
		m.fixes = make(map[string]tracking.Fix)
	}
	if cur, ok := m.fixes[deviceID]; ok && cur.RecordedAt.After(fix.RecordedAt) {
		return false, nil
	}
	m.fixes[deviceID] = fix
	return true, nil
}

type memBlobs struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	deleteErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, key, _ string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = buf.Bytes()
	return nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, key)
	return nil
}

func (m *memBlobs) URL(key string) string { return "http://media.test/" + key }

func (m *memBlobs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

type published struct {
	exchange, routingKey string
	body                 []byte
}

type recPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recPublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange, routingKey, body})
	return nil
}

func (p *recPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.routingKey
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}
