package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeQueueHealth struct {
	pending     int64
	pendingErr  error
	failureRate float64
	failureErr  error
}

func (f *fakeQueueHealth) CountPending(context.Context) (int64, error) { return f.pending, f.pendingErr }
func (f *fakeQueueHealth) FailureRateSince(context.Context, time.Time) (float64, error) {
	return f.failureRate, f.failureErr
}

func TestCheckIsUnhealthyWhenDatabaseDown(t *testing.T) {
	c := NewHealthChecker(&fakePinger{err: errors.New("connection refused")}, &fakeQueueHealth{}, func() bool { return true })

	got := c.Check(context.Background())

	assert.Equal(t, HealthUnhealthy, got.Status)
	assert.Equal(t, "down", got.Checks["database"].Status)
}

func TestCheckIsHealthyWhenAllComponentsUp(t *testing.T) {
	c := NewHealthChecker(&fakePinger{}, &fakeQueueHealth{pending: 5, failureRate: 0.01}, func() bool { return true })

	got := c.Check(context.Background())

	assert.Equal(t, HealthOK, got.Status)
}

func TestCheckIsDegradedWhenBacklogHigh(t *testing.T) {
	c := NewHealthChecker(&fakePinger{}, &fakeQueueHealth{pending: 50000}, func() bool { return true })
	c.BacklogDegraded = 100

	got := c.Check(context.Background())

	assert.Equal(t, HealthDegraded, got.Status)
	assert.Equal(t, "degraded", got.Checks["queue"].Status)
}

func TestCheckIsDegradedWhenFailureRateHigh(t *testing.T) {
	c := NewHealthChecker(&fakePinger{}, &fakeQueueHealth{failureRate: 0.9}, func() bool { return true })

	got := c.Check(context.Background())

	assert.Equal(t, HealthDegraded, got.Status)
	assert.Equal(t, "degraded", got.Checks["error_rate"].Status)
}

func TestCheckIsDownWhenNoPlatformsConfigured(t *testing.T) {
	c := NewHealthChecker(&fakePinger{}, &fakeQueueHealth{}, func() bool { return false })

	got := c.Check(context.Background())

	assert.Equal(t, "down", got.Checks["platforms"].Status)
	assert.Equal(t, HealthDegraded, got.Status)
}
