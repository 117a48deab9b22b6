// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrBusinessNotFound indicates a business was not found by the given identifier.
	ErrBusinessNotFound = errors.New("business not found")

	// ErrUserNotFound indicates a user was not found by the given identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrTemplateNotFound indicates an email template was not found.
	ErrTemplateNotFound = errors.New("email template not found")

	// ErrExecutionNotFound indicates an execution log was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionCompleted indicates an attempt to modify a closed execution log.
	ErrExecutionCompleted = errors.New("execution already completed")

	// ErrScrapingJobNotFound indicates a scraping job was not found.
	ErrScrapingJobNotFound = errors.New("scraping job not found")

	// ErrDuplicateBusiness indicates the business already exists for the user.
	ErrDuplicateBusiness = errors.New("business already exists")

	// ErrUnsupportedTable indicates a database node targeted a table outside the whitelist.
	ErrUnsupportedTable = errors.New("unsupported table")

	// ErrUnsupportedOperation indicates a database node used an unknown operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update")
	Entity string // Entity kind (e.g., "workflow", "business")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsBusinessNotFound checks if an error indicates a business was not found.
func IsBusinessNotFound(err error) bool {
	return errors.Is(err, ErrBusinessNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution log was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsScrapingJobNotFound checks if an error indicates a scraping job was not found.
func IsScrapingJobNotFound(err error) bool {
	return errors.Is(err, ErrScrapingJobNotFound)
}

// IsDuplicateBusiness checks if an error indicates a duplicate business insert.
func IsDuplicateBusiness(err error) bool {
	return errors.Is(err, ErrDuplicateBusiness)
}

// IsNotFound checks for any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrScrapingJobNotFound)
}
