package authcode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReaper_ReapOnce(t *testing.T) {
	repo := new(mockRepository)
	repo.On("DeleteExpiredAuthCodes", mock.Anything).Return(int64(4), nil).Once()
	repo.On("DeleteExpiredAuthCodes", mock.Anything).Return(int64(0), errors.New("boom")).Once()

	var reaped int64
	r := NewReaper(repo, time.Minute, nil, func(n int64) { reaped += n })

	n, err := r.ReapOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int64(4), reaped)

	_, err = r.ReapOnce(context.Background())
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	repo := new(mockRepository)
	var calls atomic.Int32
	repo.On("DeleteExpiredAuthCodes", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(int64(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReaper(repo, 5*time.Millisecond, nil, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
