package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/nodes/delay"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayNode_Suspends(t *testing.T) {
	node := testutil.CreateTestNode(models.NodeTypeDelay, models.DelayConfig{Hours: 1, Minutes: 30})
	ec := testutil.CreateTestContext(nil, nil)

	outcome, err := delay.NewDelayNode().Execute(context.Background(), node, ec)

	require.NoError(t, err)
	assert.Equal(t, protocol.Suspend(90*time.Minute), outcome)
	assert.Contains(t, ec.Logs()[0], "Delaying for 1h30m0s")
}

func TestDelayNode_ZeroContinues(t *testing.T) {
	node := testutil.CreateTestNode(models.NodeTypeDelay, models.DelayConfig{})

	outcome, err := delay.NewDelayNode().Execute(context.Background(), node, testutil.CreateTestContext(nil, nil))

	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(), outcome)
}

func TestDuration_FractionalHours(t *testing.T) {
	assert.Equal(t, 45*time.Minute, delay.Duration(models.DelayConfig{Hours: 0.75}))
}
