package grouping

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// memStore is a transactional in-memory Store. A run works on a copy of the
// committed state which replaces it only on Commit.
type memStore struct {
	mu         sync.Mutex
	articles   map[int64]Article
	groups     map[int64]GroupRecord
	runs       []RunRecord
	nextID     int64
	locked     bool
	beginCalls int

	failSaveGroup bool
	failAssign    bool
	stealArticle  int64
}

func newMemStore(articles ...Article) *memStore {
	s := &memStore{
		articles: make(map[int64]Article),
		groups:   make(map[int64]GroupRecord),
		nextID:   1,
	}
	s.add(articles...)
	return s
}

func (s *memStore) add(articles ...Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range articles {
		s.articles[a.ID] = a
		if a.Grouped() && *a.EventGroupID >= s.nextID {
			s.nextID = *a.EventGroupID + 1
		}
	}
}

func (s *memStore) BeginRun(context.Context) (RunTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginCalls++
	if s.locked {
		return nil, ErrRunInProgress
	}
	s.locked = true

	tx := &memTx{
		store:    s,
		articles: make(map[int64]Article, len(s.articles)),
		groups:   make(map[int64]GroupRecord, len(s.groups)),
		runs:     append([]RunRecord(nil), s.runs...),
		nextID:   s.nextID,
	}
	for id, a := range s.articles {
		tx.articles[id] = cloneArticle(a)
	}
	for id, g := range s.groups {
		tx.groups[id] = g
	}
	return tx, nil
}

func (s *memStore) RecordFailedRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memStore) assignments() map[int64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int64, len(s.articles))
	for id, a := range s.articles {
		if a.Grouped() {
			out[id] = *a.EventGroupID
		}
	}
	return out
}

func (s *memStore) groupOf(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.articles[id]
	if !a.Grouped() {
		return 0
	}
	return *a.EventGroupID
}

func (s *memStore) runLedger() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.runs...)
}

type memTx struct {
	store    *memStore
	articles map[int64]Article
	groups   map[int64]GroupRecord
	runs     []RunRecord
	nextID   int64
	assigns  int
	done     bool
}

func (t *memTx) LoadWorkingSet(_ context.Context, since time.Time) ([]Article, error) {
	out := make([]Article, 0, len(t.articles))
	for _, a := range t.articles {
		if a.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneArticle(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GroupSizes(_ context.Context, groupIDs []int64) (map[int64]int, error) {
	sizes := make(map[int64]int, len(groupIDs))
	for _, id := range groupIDs {
		sizes[id] = 0
	}
	for _, a := range t.articles {
		if !a.Grouped() {
			continue
		}
		if _, ok := sizes[*a.EventGroupID]; ok {
			sizes[*a.EventGroupID]++
		}
	}
	return sizes, nil
}

func (t *memTx) NextGroupID(context.Context) (int64, error) {
	id := t.nextID
	t.nextID++
	return id, nil
}

func (t *memTx) AssignGroup(_ context.Context, groupID int64, articleIDs []int64) (int64, error) {
	t.assigns++
	if t.store.failAssign && t.assigns > 1 {
		return 0, errors.New("connection reset")
	}
	if t.store.stealArticle != 0 {
		if a, ok := t.articles[t.store.stealArticle]; ok && !a.Grouped() {
			other := int64(999)
			a.EventGroupID = &other
			t.articles[a.ID] = a
		}
	}

	var affected int64
	for _, id := range articleIDs {
		a, ok := t.articles[id]
		if !ok || a.Grouped() {
			continue
		}
		gid := groupID
		a.EventGroupID = &gid
		t.articles[id] = a
		affected++
	}
	return affected, nil
}

func (t *memTx) SaveGroup(_ context.Context, group GroupRecord) error {
	if t.store.failSaveGroup {
		return errors.New("disk full")
	}
	if existing, ok := t.groups[group.GroupID]; ok {
		existing.MemberCount = group.MemberCount
		existing.At = group.At
		t.groups[group.GroupID] = existing
		return nil
	}
	t.groups[group.GroupID] = group
	return nil
}

func (t *memTx) RecordRun(_ context.Context, run RunRecord) error {
	t.runs = append(t.runs, run)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = t.articles
	s.groups = t.groups
	s.runs = t.runs
	s.nextID = t.nextID
	s.locked = false
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
	return nil
}

func cloneArticle(a Article) Article {
	if a.EventGroupID != nil {
		gid := *a.EventGroupID
		a.EventGroupID = &gid
	}
	if a.PublishedAt != nil {
		ts := *a.PublishedAt
		a.PublishedAt = &ts
	}
	return a
}
