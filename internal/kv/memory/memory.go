// Package memory is an in-process kv.Store used by tests and by
// STORE_DRIVER=memory local runs. It mirrors the conditional-write semantics
// of the DynamoDB driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"devicegate/internal/kv"
)

type Store struct {
	mu     sync.Mutex
	tables map[string]map[kv.Key]kv.Item
}

func New() *Store {
	return &Store{tables: make(map[string]map[kv.Key]kv.Item)}
}

func (s *Store) table(name string) map[kv.Key]kv.Item {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[kv.Key]kv.Item)
		s.tables[name] = t
	}
	return t
}

func clone(it kv.Item) kv.Item {
	out := make(kv.Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func (s *Store) Get(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.table(table)[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return clone(it), nil
}

func (s *Store) Put(ctx context.Context, table string, key kv.Key, item kv.Item, mustNotExist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	if mustNotExist {
		if _, ok := t[key]; ok {
			return kv.ErrConditionFailed
		}
	}
	t[key] = clone(item)
	return nil
}

func (s *Store) Update(ctx context.Context, table string, key kv.Key, set kv.Item, cond *kv.UpdateCond) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	it, ok := t[key]
	if cond != nil {
		if cond.MustExist && !ok {
			return kv.ErrConditionFailed
		}
		for attr, want := range cond.FieldEquals {
			if !ok || it[attr] != want {
				return kv.ErrConditionFailed
			}
		}
	}
	if !ok {
		it = kv.Item{}
		t[key] = it
	}
	for attr, v := range set {
		it[attr] = v
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, key kv.Key) (kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	it, ok := t[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	delete(t, key)
	return it, nil
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	items := make([]kv.Item, 0, len(t))
	for _, it := range t {
		items = append(items, clone(it))
	}
	return items, nil
}

func (s *Store) Query(ctx context.Context, table string, partition string) ([]kv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		sort string
		item kv.Item
	}
	var rows []row
	for key, it := range s.table(table) {
		if key.Partition == partition {
			rows = append(rows, row{sort: key.Sort, item: clone(it)})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].sort < rows[j].sort })

	items := make([]kv.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.item)
	}
	return items, nil
}
