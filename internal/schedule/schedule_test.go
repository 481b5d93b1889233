package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRunsJobsOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New([]Job{{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// One immediate run plus several ticks.
	require.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestSchedulerNeverOverlapsAJob(t *testing.T) {
	var inFlight atomic.Int32
	var overlapped atomic.Bool
	s := New([]Job{{
		Name:  "slow",
		Every: 5 * time.Millisecond,
		Run: func(context.Context) error {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	}}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.False(t, overlapped.Load())
}

func TestSchedulerSurvivesJobErrors(t *testing.T) {
	var runs atomic.Int32
	s := New([]Job{{
		Name:  "flaky",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	}}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestSchedulerSkipsJobsWithoutInterval(t *testing.T) {
	var ran atomic.Bool
	s := New([]Job{{
		Name: "never",
		Run: func(context.Context) error {
			ran.Store(true)
			return nil
		},
	}}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.False(t, ran.Load())
}
