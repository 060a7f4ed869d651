package order

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ms-inventory/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLock struct {
	mock.Mock
}

func (m *MockLock) Acquire(ctx context.Context) (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockLock) Release(ctx context.Context) error {
	return m.Called().Error(0)
}

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) SweepExpired(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func newTestSweeper(lock Lock, exp expirer) *Sweeper {
	return &Sweeper{Service: exp, Lock: lock, Interval: 5 * time.Millisecond,
		Logger: logger.NewDiscardLogger(), stop: make(chan struct{})}
}

func TestSweeper_RunOnceRequiresLock(t *testing.T) {
	exp := &countingExpirer{}
	lock := &MockLock{}
	lock.On("Acquire").Return(false, nil).Once()
	lock.On("Acquire").Return(true, nil).Once()
	lock.On("Acquire").Return(false, errors.New("redis down")).Once()

	s := newTestSweeper(lock, exp)
	assert.False(t, s.RunOnce(context.Background()), "another instance holds the lock")
	assert.True(t, s.RunOnce(context.Background()))
	assert.False(t, s.RunOnce(context.Background()))

	assert.Equal(t, int32(1), exp.calls.Load())
	lock.AssertExpectations(t)
}

func TestSweeper_WithoutLockAlwaysSweeps(t *testing.T) {
	exp := &countingExpirer{}
	s := newTestSweeper(nil, exp)
	assert.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), exp.calls.Load())
}

func TestSweeper_StartAndStop(t *testing.T) {
	exp := &countingExpirer{}
	lock := &MockLock{}
	lock.On("Acquire").Return(true, nil)
	lock.On("Release").Return(nil).Once()

	s := newTestSweeper(lock, exp)
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	lock.AssertCalled(t, "Release")
}
