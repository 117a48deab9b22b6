package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TableStore executes database-node operations against the whitelisted tables.
type TableStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTableStore creates a new table store.
func NewTableStore(db *sql.DB) *TableStore {
	return &TableStore{db: db, now: time.Now}
}

// Apply runs op and returns the number of affected rows.
func (s *TableStore) Apply(ctx context.Context, op persistence.TableOperation) (int64, error) {
	err := persistence.ValidateTableOperation(op)
	if err != nil {
		return 0, err
	}

	query, args := s.build(op)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s %s: %w", op.Operation, op.Table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

func (s *TableStore) build(op persistence.TableOperation) (string, []any) {
	table := pq.QuoteIdentifier(op.Table)
	args := []any{op.UserID}

	switch op.Operation {
	case models.DatabaseUpdate:
		sets := make([]string, 0, len(op.Data))
		for _, column := range slices.Sorted(maps.Keys(op.Data)) {
			args = append(args, op.Data[column])
			sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(args)))
		}

		where, args := whereClause(op.Where, args)

		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where), args
	case models.DatabaseDelete:
		where, args := whereClause(op.Where, args)

		return fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args
	}

	row := maps.Clone(op.Data)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.New().String()
	}

	if op.Table == "businesses" {
		now := s.now().UTC()
		row["created_at"] = now
		row["updated_at"] = now
	}

	columns := []string{"user_id"}
	placeholders := []string{"$1"}

	for _, column := range slices.Sorted(maps.Keys(row)) {
		args = append(args, row[column])
		columns = append(columns, pq.QuoteIdentifier(column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if op.Operation == models.DatabaseUpsert {
		target := conflictTarget(op.ConflictColumns)

		updates := make([]string, 0, len(op.Data))
		for _, column := range slices.Sorted(maps.Keys(op.Data)) {
			if slices.Contains(target, column) {
				continue
			}

			quoted := pq.QuoteIdentifier(column)
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
		}

		quotedTarget := make([]string, 0, len(target))
		for _, column := range target {
			quotedTarget = append(quotedTarget, pq.QuoteIdentifier(column))
		}

		if len(updates) == 0 {
			query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(quotedTarget, ", "))
		} else {
			query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
				strings.Join(quotedTarget, ", "), strings.Join(updates, ", "))
		}
	}

	return query, args
}

// conflictTarget scopes natural keys by owner. The bare id key is already unique.
func conflictTarget(columns []string) []string {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "id") {
		return []string{"id"}
	}

	return append([]string{"user_id"}, columns...)
}

func whereClause(where map[string]any, args []any) (string, []any) {
	conditions := []string{"user_id = $1"}

	for _, column := range slices.Sorted(maps.Keys(where)) {
		args = append(args, where[column])
		conditions = append(conditions, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(args)))
	}

	return strings.Join(conditions, " AND "), args
}
