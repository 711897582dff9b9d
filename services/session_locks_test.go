package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocks(t *testing.T) {
	l := newSessionLocks()
	ctx := context.Background()

	release, err := l.acquire(ctx, "a")
	require.NoError(t, err)

	// other sessions are independent
	releaseB, err := l.acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan func())
	go func() {
		r, err := l.acquire(ctx, "a")
		assert.NoError(t, err)
		acquired <- r
	}()
	select {
	case <-acquired:
		t.Fatal("acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release() // second call is a no-op
	r := <-acquired
	r()
	assert.Zero(t, l.size())
}
