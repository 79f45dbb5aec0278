package prefstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/studykeep/studykeep/pkg/models"
	"github.com/uptrace/bun"
)

// Store is a typed key/value namespace with atomic multi-key commits. It is
// the local persistence collaborator for the ledgers: values are read
// fail-open (a missing or undecodable value yields the caller's default),
// and a Batch commits all of its writes in one transaction.
type Store struct {
	db        *bun.DB
	namespace string
}

func New(db *bun.DB, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) raw(ctx context.Context, key string) (string, bool, error) {
	pref := &models.Preference{}
	err := s.db.NewSelect().
		Model(pref).
		Where("namespace = ?", s.namespace).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.WithStack(err)
	}
	return pref.Value, true, nil
}

// Int64 returns the stored value for key, or def when the key is missing or
// its value cannot be decoded.
func (s *Store) Int64(ctx context.Context, key string, def int64) (int64, error) {
	raw, ok, err := s.raw(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	var value int64
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return def, nil
	}
	return value, nil
}

func (s *Store) Bool(ctx context.Context, key string, def bool) (bool, error) {
	raw, ok, err := s.raw(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	var value bool
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return def, nil
	}
	return value, nil
}

func (s *Store) String(ctx context.Context, key, def string) (string, error) {
	raw, ok, err := s.raw(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	var value string
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return def, nil
	}
	return value, nil
}

// StringSet returns the stored set for key. Missing or corrupt values read
// as the empty set; blank entries are dropped.
func (s *Store) StringSet(ctx context.Context, key string) (map[string]struct{}, error) {
	result := map[string]struct{}{}
	raw, ok, err := s.raw(ctx, key)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return result, nil
	}
	for _, v := range values {
		if v != "" {
			result[v] = struct{}{}
		}
	}
	return result, nil
}

// Batch accumulates writes and removals that Commit applies atomically.
type Batch struct {
	store    *Store
	puts     []models.Preference
	removals []string
	err      error
}

func (s *Store) Batch() *Batch {
	return &Batch{store: s}
}

func (b *Batch) put(key string, value interface{}) *Batch {
	encoded, err := json.Marshal(value)
	if err != nil && b.err == nil {
		b.err = errors.WithStack(err)
		return b
	}
	b.puts = append(b.puts, models.Preference{
		Namespace: b.store.namespace,
		Key:       key,
		Value:     string(encoded),
	})
	return b
}

func (b *Batch) PutInt64(key string, value int64) *Batch {
	return b.put(key, value)
}

func (b *Batch) PutBool(key string, value bool) *Batch {
	return b.put(key, value)
}

func (b *Batch) PutString(key, value string) *Batch {
	return b.put(key, value)
}

func (b *Batch) PutStringSet(key string, values map[string]struct{}) *Batch {
	list := make([]string, 0, len(values))
	for v := range values {
		if v != "" {
			list = append(list, v)
		}
	}
	sort.Strings(list)
	return b.put(key, list)
}

func (b *Batch) Remove(key string) *Batch {
	b.removals = append(b.removals, key)
	return b
}

// Commit applies every put and removal in one transaction.
func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.puts) == 0 && len(b.removals) == 0 {
		return nil
	}

	return b.store.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		for i := range b.puts {
			pref := b.puts[i]
			pref.UpdatedAt = now
			_, err := tx.NewInsert().
				Model(&pref).
				On("CONFLICT (namespace, key) DO UPDATE").
				Set("value = EXCLUDED.value").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		if len(b.removals) > 0 {
			_, err := tx.NewDelete().
				Model((*models.Preference)(nil)).
				Where("namespace = ?", b.store.namespace).
				Where("key IN (?)", bun.In(b.removals)).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}
