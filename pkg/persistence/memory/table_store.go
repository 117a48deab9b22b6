package memory

import (
	"context"
	"maps"
	"reflect"
	"slices"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

type tableStore struct{ p *Persistence }

// Apply mirrors the PostgreSQL table store: every row is owned by op.UserID.
func (s tableStore) Apply(_ context.Context, op persistence.TableOperation) (int64, error) {
	err := persistence.ValidateTableOperation(op)
	if err != nil {
		return 0, err
	}

	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	rows := s.p.tables[op.Table]

	switch op.Operation {
	case models.DatabaseUpdate:
		var affected int64

		for _, row := range rows {
			if matches(row, op.UserID, op.Where) {
				maps.Copy(row, op.Data)
				affected++
			}
		}

		return affected, nil
	case models.DatabaseDelete:
		kept := rows[:0]
		for _, row := range rows {
			if !matches(row, op.UserID, op.Where) {
				kept = append(kept, row)
			}
		}

		s.p.tables[op.Table] = kept

		return int64(len(rows) - len(kept)), nil
	case models.DatabaseUpsert:
		key := make(map[string]any, len(op.ConflictColumns))
		columns := op.ConflictColumns
		if len(columns) == 0 {
			columns = []string{"id"}
		}

		for _, column := range columns {
			key[column] = op.Data[column]
		}

		for _, row := range rows {
			if matches(row, op.UserID, key) {
				maps.Copy(row, op.Data)

				return 1, nil
			}
		}
	}

	row := maps.Clone(op.Data)
	row["user_id"] = op.UserID

	if _, ok := row["id"]; !ok {
		row["id"] = uuid.New().String()
	}

	s.p.tables[op.Table] = append(slices.Clip(rows), row)

	return 1, nil
}

func matches(row map[string]any, userID string, where map[string]any) bool {
	if owner, _ := row["user_id"].(string); owner != userID {
		return false
	}

	for column, value := range where {
		if !reflect.DeepEqual(row[column], value) {
			return false
		}
	}

	return true
}
