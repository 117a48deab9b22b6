// Package protocol defines the interfaces and contracts between the graph walker, the node
// handlers and the outside world.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// RouteKind tells the walker what to do after a node handler returns.
type RouteKind int

const (
	// RouteContinue walks every default (unlabeled) outgoing edge.
	RouteContinue RouteKind = iota
	// RouteHandle walks only the edges whose sourceHandle equals Outcome.Handle.
	RouteHandle
	// RouteStop ends this branch; sibling branches are unaffected.
	RouteStop
	// RouteSuspend parks this branch until Outcome.Delay has elapsed.
	RouteSuspend
)

// Outcome is the routing decision of a node handler.
type Outcome struct {
	Kind   RouteKind
	Handle string
	Delay  time.Duration
}

// Continue follows the default edges.
func Continue() Outcome { return Outcome{Kind: RouteContinue} }

// Route follows only the edges labeled handle.
func Route(handle string) Outcome { return Outcome{Kind: RouteHandle, Handle: handle} }

// Stop ends the branch.
func Stop() Outcome { return Outcome{Kind: RouteStop} }

// Suspend parks the branch for d.
func Suspend(d time.Duration) Outcome { return Outcome{Kind: RouteSuspend, Delay: d} }

// NodeHandler executes one node type. A returned error aborts the whole run; soft failures are
// recorded with ExecutionContext.Fail and the handler returns a normal outcome.
type NodeHandler interface {
	Type() models.NodeType
	Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (Outcome, error)
}

// NodeHandlerFunc adapts a function into a NodeHandler for a fixed type.
type NodeHandlerFunc struct {
	NodeType models.NodeType
	Fn       func(ctx context.Context, node models.Node, ec *models.ExecutionContext) (Outcome, error)
}

func (f NodeHandlerFunc) Type() models.NodeType { return f.NodeType }

func (f NodeHandlerFunc) Execute(ctx context.Context, node models.Node, ec *models.ExecutionContext) (Outcome, error) {
	return f.Fn(ctx, node, ec)
}
