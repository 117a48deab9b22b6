// Package registry maps node types to the handlers that execute them.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.NodeType]protocol.NodeHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log,
		handlers: make(map[models.NodeType]protocol.NodeHandler),
	}
}

// RegisterNode installs handler for its node type, replacing any previous one.
func (r *Registry) RegisterNode(handler protocol.NodeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[handler.Type()]; exists {
		r.logger.Debug("Replacing node handler", "type", handler.Type())
	}

	r.handlers[handler.Type()] = handler
}

// Handler returns the handler registered for nodeType.
func (r *Registry) Handler(nodeType models.NodeType) (protocol.NodeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return handler, nil
}

// Types lists the registered node types in sorted order.
func (r *Registry) Types() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}
