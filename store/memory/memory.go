package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/animatch/animatch/core"
	"github.com/animatch/animatch/store"
)

// Store is an in-memory implementation of both cache repositories. It
// backs tests and offline runs; semantics mirror the document store,
// including merge upserts and rank-based windows.
type Store struct {
	mu      sync.RWMutex
	list    map[int]core.ListEntry
	details map[int]*core.Detail
	now     store.Clock
}

var _ store.CatalogRepository = (*Store)(nil)
var _ store.CatalogScanner = (*Store)(nil)
var _ store.DetailRepository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the clock used to stamp fetched_at.
func WithClock(now store.Clock) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		list:    make(map[int]core.ListEntry),
		details: make(map[int]*core.Detail),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertListEntries merges catalog rows into the store. Rows without an
// id are counted as skipped. Zero-valued fields of the incoming row do
// not overwrite existing values, matching the $set merge semantics.
func (s *Store) UpsertListEntries(_ context.Context, entries []core.ListEntry) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written, skipped := 0, 0
	for _, e := range entries {
		if e.ID == 0 {
			skipped++
			continue
		}
		existing, ok := s.list[e.ID]
		if !ok {
			s.list[e.ID] = e
			written++
			continue
		}
		s.list[e.ID] = mergeListEntry(existing, e)
		written++
	}
	return written, skipped, nil
}

func mergeListEntry(base, in core.ListEntry) core.ListEntry {
	if in.Rank != nil {
		base.Rank = in.Rank
	}
	if in.Title != "" {
		base.Title = in.Title
	}
	if in.SourceURL != "" {
		base.SourceURL = in.SourceURL
	}
	if in.Score != nil {
		base.Score = in.Score
	}
	if in.CoverImageURL != "" {
		base.CoverImageURL = in.CoverImageURL
	}
	if in.Category != "" {
		base.Category = in.Category
	}
	if in.EpisodeCount != "" {
		base.EpisodeCount = in.EpisodeCount
	}
	return base
}

// ReadListWindow returns rows with rank >= offset+1 sorted by rank.
func (s *Store) ReadListWindow(_ context.Context, offset, limit int) ([]core.ListEntry, error) {
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []core.ListEntry
	for _, e := range s.list {
		if e.Rank != nil && *e.Rank >= offset+1 {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return *entries[i].Rank < *entries[j].Rank
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ReadListByIDs returns rows in input order, omitting misses.
func (s *Store) ReadListByIDs(_ context.Context, ids []int) ([]core.ListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]core.ListEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.list[id]; ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ReadAllList returns up to limit rows; limit <= 0 means all.
func (s *Store) ReadAllList(_ context.Context, limit int) ([]core.ListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]core.ListEntry, 0, len(s.list))
	for _, e := range s.list {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// CountList returns the number of catalog rows.
func (s *Store) CountList(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.list)), nil
}

// UpsertDetail stores one record, stamping fetched_at.
func (s *Store) UpsertDetail(ctx context.Context, detail *core.Detail) error {
	return s.UpsertDetails(ctx, []*core.Detail{detail})
}

// UpsertDetails stores a batch of records, stamping each fetched_at.
func (s *Store) UpsertDetails(_ context.Context, details []*core.Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UTC()
	for _, d := range details {
		if d == nil || d.ID == 0 {
			continue
		}
		cp := *d
		cp.FetchedAt = stamp
		s.details[cp.ID] = &cp
	}
	return nil
}

// ReadDetailsByIDs returns records in input order, omitting misses.
func (s *Store) ReadDetailsByIDs(_ context.Context, ids []int) ([]*core.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]*core.Detail, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.details[id]; ok {
			cp := *d
			details = append(details, &cp)
		}
	}
	return details, nil
}

// ReadAllDetails returns up to limit records; limit <= 0 means all.
func (s *Store) ReadAllDetails(_ context.Context, limit int) ([]*core.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := make([]*core.Detail, 0, len(s.details))
	for _, d := range s.details {
		cp := *d
		details = append(details, &cp)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })
	if limit > 0 && len(details) > limit {
		details = details[:limit]
	}
	return details, nil
}

// CountDetails returns the number of detail records.
func (s *Store) CountDetails(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.details)), nil
}

// DistinctValues flattens the named list field across all records.
// The field is validated up front, so an unknown field errors even on
// an empty store.
func (s *Store) DistinctValues(_ context.Context, field string) ([]string, error) {
	var pick func(d *core.Detail) []string
	switch field {
	case "genres":
		pick = func(d *core.Detail) []string { return d.Genres }
	case "themes":
		pick = func(d *core.Detail) []string { return d.Themes }
	case "studios":
		pick = func(d *core.Detail) []string { return d.Studios }
	case "producers":
		pick = func(d *core.Detail) []string { return d.Producers }
	case "demographic":
		pick = func(d *core.Detail) []string { return d.Demographic }
	case "type":
		pick = func(d *core.Detail) []string { return []string{d.Category} }
	case "source":
		pick = func(d *core.Detail) []string { return []string{d.SourceMaterial} }
	case "status":
		pick = func(d *core.Detail) []string { return []string{d.Status} }
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidField, field)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, d := range s.details {
		for _, v := range pick(d) {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}
