package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(nil)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestScheduler_RunsAndStops(t *testing.T) {
	var calls int32
	sched := NewScheduler("test", 5*time.Millisecond, silentLogger(), func(shouldBreak ShouldBreak) (Outcome, time.Duration) {
		atomic.AddInt32(&calls, 1)
		return Reschedule, 5 * time.Millisecond
	})

	sched.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.StopAndWait(ctx))

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	assert.False(t, sched.Running())
}

func TestScheduler_DoneStopsRescheduling(t *testing.T) {
	var calls int32
	sched := NewScheduler("once", time.Millisecond, silentLogger(), func(shouldBreak ShouldBreak) (Outcome, time.Duration) {
		atomic.AddInt32(&calls, 1)
		return Done, 0
	})
	sched.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScheduler_PanicRecovered(t *testing.T) {
	sched := NewScheduler("panicky", time.Millisecond, silentLogger(), func(shouldBreak ShouldBreak) (Outcome, time.Duration) {
		panic("boom")
	})
	sched.Start()
	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.StopAndWait(ctx))
}
