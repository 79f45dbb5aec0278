package docstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/studykeep/studykeep/pkg/models"
	"github.com/uptrace/bun"
)

// SQLStore is the bun-backed Store over the documents table.
type SQLStore struct {
	db *bun.DB
}

func NewSQLStore(db *bun.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, path string) (Fields, bool, error) {
	return getDocument(ctx, s.db, path)
}

func (s *SQLStore) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	return setDocument(ctx, s.db, path, fields, merge)
}

func (s *SQLStore) Delete(ctx context.Context, path string) error {
	_, err := s.db.NewDelete().
		Model((*models.Document)(nil)).
		Where("path = ?", path).
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *SQLStore) DeleteTree(ctx context.Context, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/")
	_, err := s.db.NewDelete().
		Model((*models.Document)(nil)).
		Where("path = ? OR path LIKE ?", prefix, prefix+"/%").
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSuffix(prefix, "/")

	var paths []string
	err := s.db.NewSelect().
		Model((*models.Document)(nil)).
		Column("path").
		Where("path LIKE ?", prefix+"/%").
		Order("path ASC").
		Scan(ctx, &paths)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return paths, nil
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, sqlTx{tx: tx})
	})
}

type sqlTx struct {
	tx bun.Tx
}

func (t sqlTx) Get(ctx context.Context, path string) (Fields, bool, error) {
	return getDocument(ctx, t.tx, path)
}

func (t sqlTx) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	return setDocument(ctx, t.tx, path, fields, merge)
}

func getDocument(ctx context.Context, db bun.IDB, path string) (Fields, bool, error) {
	doc := &models.Document{}
	err := db.NewSelect().
		Model(doc).
		Where("path = ?", path).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.WithStack(err)
	}

	fields := Fields{}
	if err := json.Unmarshal([]byte(doc.Fields), &fields); err != nil {
		return nil, false, errors.WithStack(err)
	}
	return fields, true, nil
}

func setDocument(ctx context.Context, db bun.IDB, path string, fields Fields, merge bool) error {
	if merge {
		existing, ok, err := getDocument(ctx, db, path)
		if err != nil {
			return err
		}
		if ok {
			for key, value := range fields {
				existing[key] = value
			}
			fields = existing
		}
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return errors.WithStack(err)
	}

	doc := &models.Document{
		Path:      path,
		Fields:    string(encoded),
		UpdatedAt: time.Now(),
	}
	_, err = db.NewInsert().
		Model(doc).
		On("CONFLICT (path) DO UPDATE").
		Set("fields = EXCLUDED.fields").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return errors.WithStack(err)
}
