// Package pg: адаптер Postgres: DDL, реестр типов, записи, страницы и языки.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"klinika/internal/content"
	"klinika/internal/locale"
	"klinika/internal/pages"
	"klinika/internal/schema"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func New(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

var (
	_ schema.Store    = (*Store)(nil)
	_ schema.Migrator = (*Store)(nil)
	_ content.Store   = (*Store)(nil)
	_ pages.Store     = (*Store)(nil)
	_ locale.Store    = (*Store)(nil)
)

// Migrate создаёт системные таблицы и таблицы всех зарегистрированных типов.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ApplyDDL(ctx, s.db, SystemDDL(), s.log); err != nil {
		return err
	}
	types, err := s.ListContentTypes(ctx)
	if err != nil {
		return err
	}
	for _, ct := range types {
		full, err := s.loadType(ctx, ct)
		if err != nil {
			return err
		}
		if err := s.SyncContentType(ctx, full); err != nil {
			return err
		}
	}
	s.log.Info("migrations applied", "content_types", len(types))
	return nil
}

func (s *Store) loadType(ctx context.Context, ct *schema.ContentType) (*schema.ContentType, error) {
	fields, err := s.ListFields(ctx, ct.ID)
	if err != nil {
		return nil, err
	}
	rels, err := s.ListRelations(ctx, ct.ID)
	if err != nil {
		return nil, err
	}
	ct.Fields, ct.Relations = fields, rels
	return ct, nil
}

// inTx выполняет fn в транзакции; ошибка fn откатывает всё.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin tx", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.log.Error("rollback", "err", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// SyncContentType реализует schema.Migrator.
func (s *Store) SyncContentType(ctx context.Context, ct *schema.ContentType) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ApplyDDL(ctx, tx, TypeDDL(ct), s.log); err != nil {
			return mapError(fmt.Sprintf("sync %s", ct.Name), err)
		}
		return nil
	})
}

func (s *Store) DropField(ctx context.Context, ct *schema.ContentType, f *schema.Field) error {
	if _, err := s.db.ExecContext(ctx, DropFieldDDL(ct, f)); err != nil {
		return mapError("drop field", err)
	}
	return nil
}

func (s *Store) DropContentType(ctx context.Context, ct *schema.ContentType) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, DropTypeDDL(ct)); err != nil {
			return mapError("drop content type", err)
		}
		return nil
	})
}
