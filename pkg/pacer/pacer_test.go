package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewClampsAndSeeds(t *testing.T) {
	p := New(0)
	assert.Equal(t, 1, p.TargetPPS())
	assert.Equal(t, 1, p.CurrentPPS())
}

func TestWaitBlocksRoughlyOneInterval(t *testing.T) {
	p := New(100) // 10ms interval
	ctx := context.Background()

	start := time.Now()
	p.Wait(ctx)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestWaitReturnsImmediatelyOnOverrun(t *testing.T) {
	p := New(1000) // 1ms interval
	ctx := context.Background()
	time.Sleep(5 * time.Millisecond) // already behind

	start := time.Now()
	p.Wait(ctx)
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestChangeRateClampsToTarget(t *testing.T) {
	p := New(100)
	p.ChangeRate(500)
	assert.Equal(t, 100, p.CurrentPPS())

	p.ChangeRate(0)
	assert.Equal(t, 1, p.CurrentPPS())
}

func TestWaitCanceledByContext(t *testing.T) {
	p := New(1) // 1s interval
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	p.Wait(ctx)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
