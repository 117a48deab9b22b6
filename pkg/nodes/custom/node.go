// Package custom provides the user-scripted gate node backed by expr-lang.
package custom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/leadflow/pkg/condition"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// CustomNode evaluates a user expression against the business and variables. A truthy result
// continues the branch, a falsy one stops it. Compiled programs are cached per source text.
type CustomNode struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewCustomNode() *CustomNode {
	return &CustomNode{cache: make(map[string]*vm.Program)}
}

func (n *CustomNode) Type() models.NodeType { return models.NodeTypeCustom }

func (n *CustomNode) Execute(_ context.Context, node models.Node, ec *models.ExecutionContext) (protocol.Outcome, error) {
	config, _ := node.Config.(models.CustomConfig)

	code := normalize(config.Code)
	if code == "" {
		return protocol.Continue(), nil
	}

	env := environment(ec)

	program, err := n.compile(code, env)
	if err != nil {
		return protocol.Outcome{}, err
	}

	out, err := vm.Run(program, env)
	if err != nil {
		if isNilOperand(err) {
			ec.Logf("🛑 Custom code met a missing value (%v), stopping branch", err)

			return protocol.Stop(), nil
		}

		return protocol.Outcome{}, fmt.Errorf("custom code evaluation failed: %w", err)
	}

	if !condition.Truthy(out) {
		ec.Logf("🛑 Custom code returned %v, stopping branch", out)

		return protocol.Stop(), nil
	}

	return protocol.Continue(), nil
}

func (n *CustomNode) compile(code string, env map[string]any) (*vm.Program, error) {
	n.mu.RLock()
	program, ok := n.cache[code]
	n.mu.RUnlock()

	if ok {
		return program, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if program, ok := n.cache[code]; ok {
		return program, nil
	}

	program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("custom code compile error: %w", err)
	}

	n.cache[code] = program

	return program, nil
}

// isNilOperand reports whether a runtime error came from operating on a missing value, such as
// comparing an absent rating with a number. Those expressions are falsy rather than fatal.
func isNilOperand(err error) bool {
	return strings.Contains(err.Error(), "<nil>")
}

// normalize accepts the snippet shape the builder produces ("return x;") as well as a bare expression.
func normalize(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimSpace(strings.TrimPrefix(code, "return "))

	return strings.TrimSpace(strings.TrimSuffix(code, ";"))
}

func environment(ec *models.ExecutionContext) map[string]any {
	business := map[string]any(ec.BusinessData)
	if business == nil {
		business = map[string]any{}
	}

	variables := ec.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	return map[string]any{
		"business":  business,
		"company":   business,
		"lead":      business,
		"variables": variables,
	}
}
