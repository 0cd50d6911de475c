package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ApplyDDL выполняет map[key]sql по возрастанию ключа. Ожидается idempotent DDL
// (create ... if not exists); duplicate_object (42710) пропускается.
func ApplyDDL(ctx context.Context, db DBTX, ddl map[string]string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == "42710" || pgErr.Code == "42P07") {
				log.Info("ddl skipped, already exists", "key", k, "constraint", pgErr.ConstraintName, "msg", strings.TrimSpace(pgErr.Message))
				continue
			}
			return fmt.Errorf("ddl %s: %w", k, err)
		}
		log.Debug("ddl applied", "key", k)
	}
	return nil
}
