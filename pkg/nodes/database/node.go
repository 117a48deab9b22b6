// Package database provides the node that writes rows into the user's lead tables.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/template"
)

type DatabaseNode struct {
	store persistence.TableStore
}

func NewDatabaseNode(store persistence.TableStore) *DatabaseNode {
	return &DatabaseNode{store: store}
}

func (n *DatabaseNode) Type() models.NodeType { return models.NodeTypeDatabase }

func (n *DatabaseNode) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.DatabaseConfig)

	op, err := operation(config, ec)
	if err != nil {
		ec.Fail(node, err)

		return protocol.Continue(), nil
	}

	affected, err := n.store.Apply(ctx, op)
	if err != nil {
		ec.Fail(node, err)

		return protocol.Continue(), nil
	}

	ec.Logf("🗄️ Database %s on %s affected %d row(s)", op.Operation, op.Table, affected)

	return protocol.Continue(), nil
}

func operation(config models.DatabaseConfig, ec *models.ExecutionContext) (persistence.TableOperation, error) {
	op := persistence.TableOperation{
		UserID:          ec.UserID,
		Table:           strings.TrimSpace(config.Table),
		Operation:       strings.ToLower(strings.TrimSpace(config.Operation)),
		ConflictColumns: config.ConflictColumns,
	}

	data, err := decode("data", string(config.Data), ec)
	if err != nil {
		return op, err
	}

	where, err := decode("where", string(config.Where), ec)
	if err != nil {
		return op, err
	}

	op.Data = data
	op.Where = where

	return op, nil
}

func decode(field, raw string, ec *models.ExecutionContext) (map[string]any, error) {
	raw = strings.TrimSpace(template.Interpolate(raw, ec))
	if raw == "" {
		return nil, nil
	}

	var decoded map[string]any

	err := json.Unmarshal([]byte(raw), &decoded)
	if err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", field, err)
	}

	return decoded, nil
}
