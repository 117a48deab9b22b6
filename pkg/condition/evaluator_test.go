package condition_test

import (
	"testing"

	"github.com/dukex/leadflow/pkg/condition"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func contextWith(business models.BusinessData, variables map[string]any) *models.ExecutionContext {
	ec := models.NewExecutionContext("exec", "wf", "user", nil, variables)
	ec.BusinessData = business

	return ec
}

func TestEvaluate(t *testing.T) {
	business := models.BusinessData{
		"website":  "",
		"email":    "joe@diner.test",
		"category": "Restaurant",
		"rating":   4.5,
		"reviews":  float64(0),
	}
	variables := map[string]any{"lastMessageStatus": "sent", "linkedinResults": []any{}}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"negation of empty string", "!website", true},
		{"negation of present value", "!email", false},
		{"negation of missing", "!phone", true},
		{"equality with double quotes", `category == "Restaurant"`, true},
		{"equality with single quotes", "category == 'Cafe'", false},
		{"equality without quotes", "business.category==Restaurant", true},
		{"equality on number", "rating == 4.5", true},
		{"inequality", `variables.lastMessageStatus != "failed"`, true},
		{"inequality equal", `lastMessageStatus != "sent"`, false},
		{"truthiness present", "email", true},
		{"truthiness empty", "website", false},
		{"truthiness zero", "reviews", false},
		{"truthiness empty list", "variables.linkedinResults", false},
		{"truthiness missing", "{nothing}", false},
		{"missing equals empty literal", `phone == ""`, true},
		{"whitespace", "   email   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, condition.Evaluate(tt.expr, contextWith(business, variables)))
		})
	}
}

func TestEvaluate_NilContextFailsClosed(t *testing.T) {
	assert.False(t, condition.Evaluate("email", nil))
	assert.True(t, condition.Evaluate("!email", nil))
}

func TestTruthy(t *testing.T) {
	assert.False(t, condition.Truthy(nil))
	assert.False(t, condition.Truthy(false))
	assert.False(t, condition.Truthy(""))
	assert.False(t, condition.Truthy(0))
	assert.False(t, condition.Truthy(map[string]any{}))
	assert.False(t, condition.Truthy([]string{}))
	assert.True(t, condition.Truthy("x"))
	assert.True(t, condition.Truthy(1.5))
	assert.True(t, condition.Truthy([]string{"a"}))
	assert.True(t, condition.Truthy(struct{}{}))
}
