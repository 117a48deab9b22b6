// Package workflow walks a workflow graph for one business, dispatching every visited node to
// its registered handler.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxVisits bounds node visits per run so cyclic graphs terminate.
const DefaultMaxVisits = 1000

var (
	// ErrStartNodeNotFound is reported when the graph has no start node.
	ErrStartNodeNotFound = errors.New("no start node found in workflow")

	// ErrVisitLimitExceeded aborts a run that visited more nodes than the executor allows.
	ErrVisitLimitExceeded = errors.New("node visit limit exceeded")

	// ErrResumeNodeNotFound is reported when a continuation points at a node that no longer exists.
	ErrResumeNodeNotFound = errors.New("resume node not found in workflow")
)

// NodeError is a run-aborting failure raised by one node.
type NodeError struct {
	NodeID   string
	NodeType models.NodeType
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s node %s: %v", e.NodeType, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// HandlerLookup resolves the handler of a node type.
type HandlerLookup interface {
	Handler(nodeType models.NodeType) (protocol.NodeHandler, error)
}

type Executor struct {
	handlers  HandlerLookup
	logger    *slog.Logger
	tracer    trace.Tracer
	maxVisits int
}

type Option func(*Executor)

// WithTracer opens one span per visited node.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithMaxVisits overrides DefaultMaxVisits.
func WithMaxVisits(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

func NewExecutor(handlers HandlerLookup, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		handlers:  handlers,
		logger:    logger.With("module", "workflow_executor"),
		tracer:    otelhelper.Noop(),
		maxVisits: DefaultMaxVisits,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute walks graph from its start node.
func (e *Executor) Execute(ctx context.Context, graph models.WorkflowGraph, ec *models.ExecutionContext) Result {
	start, ok := graph.StartNode()
	if !ok {
		ec.Logf("❌ No start node found in workflow")

		return e.result(ec, ErrStartNodeNotFound)
	}

	w := e.newWalk(&graph, ec)

	return e.result(ec, w.run(ctx, func() error { return w.visit(ctx, start) }))
}

// Resume continues a suspended run after the delay node fromNodeID, walking its default edges.
func (e *Executor) Resume(ctx context.Context, graph models.WorkflowGraph, ec *models.ExecutionContext, fromNodeID string) Result {
	node, ok := graph.Node(fromNodeID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrResumeNodeNotFound, fromNodeID)
		ec.Logf("❌ Error: %v", err)

		return e.result(ec, err)
	}

	ec.Logf("▶️ Resuming after %s node: %s", node.Type, node.DisplayName())

	w := e.newWalk(&graph, ec)

	return e.result(ec, w.run(ctx, func() error {
		return w.follow(ctx, graph.Outgoing(node.ID, ""))
	}))
}

func (e *Executor) result(ec *models.ExecutionContext, err error) Result {
	failures := ec.Failures()

	return Result{
		Success:     err == nil && len(failures) == 0,
		Logs:        ec.Logs(),
		Err:         err,
		Failures:    failures,
		Suspensions: ec.Suspensions(),
		State:       ec.State(),
	}
}

func (e *Executor) newWalk(graph *models.WorkflowGraph, ec *models.ExecutionContext) *walk {
	return &walk{
		executor: e,
		graph:    graph,
		ec:       ec,
		logger: e.logger.With(
			"workflow_id", ec.WorkflowID,
			"business_id", ec.BusinessID,
			"execution_id", ec.ExecutionID,
		),
	}
}

type walk struct {
	executor *Executor
	graph    *models.WorkflowGraph
	ec       *models.ExecutionContext
	logger   *slog.Logger
	visits   int
}

// run executes fn and converts an abort into the transcript's terminal error line.
func (w *walk) run(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	message := err.Error()

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		message = nodeErr.Err.Error()
	}

	w.ec.Logf("❌ Error: %s", message)
	w.logger.ErrorContext(ctx, "Workflow run aborted", "error", err, "visits", w.visits)

	return err
}

func (w *walk) visit(ctx context.Context, node models.Node) error {
	w.visits++
	if w.visits > w.executor.maxVisits {
		return fmt.Errorf("%w (%d)", ErrVisitLimitExceeded, w.executor.maxVisits)
	}

	w.ec.Logf("Executing %s node: %s", node.Type, node.DisplayName())

	outcome, err := w.dispatch(ctx, node)
	if err != nil {
		return &NodeError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	switch outcome.Kind {
	case protocol.RouteStop:
		return nil
	case protocol.RouteSuspend:
		w.ec.Suspend(node, outcome.Delay)

		return nil
	case protocol.RouteHandle:
		edges := w.graph.Outgoing(node.ID, outcome.Handle)
		if len(edges) == 0 {
			w.ec.Logf("⚠️ No %s branch connected for %s", outcome.Handle, node.DisplayName())

			return nil
		}

		return w.follow(ctx, edges)
	default:
		return w.follow(ctx, w.graph.Outgoing(node.ID, ""))
	}
}

// follow walks edges depth-first in edge-list order.
func (w *walk) follow(ctx context.Context, edges []models.Edge) error {
	for _, edge := range edges {
		target, ok := w.graph.Node(edge.Target)
		if !ok {
			w.logger.WarnContext(ctx, "Edge points at unknown node", "edge_id", edge.ID, "target", edge.Target)

			continue
		}

		err := w.visit(ctx, target)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *walk) dispatch(ctx context.Context, node models.Node) (outcome protocol.Outcome, err error) {
	handler, err := w.executor.handlers.Handler(node.Type)
	if err != nil {
		w.ec.Logf("⚠️ No handler for %s node %s, continuing", node.Type, node.DisplayName())

		return protocol.Continue(), nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.executor.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.ExecutionIDKey, w.ec.ExecutionID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s node: %v", node.Type, r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	return handler.Execute(ctx, node, w.ec)
}
