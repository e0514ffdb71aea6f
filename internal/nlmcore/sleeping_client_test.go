package nlmcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientSleepingLockRegistryGrant(t *testing.T) {
	t.Run("GrantWakesWaiter", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		l := r.Register(h, "fh-1", 7, 0, 10)

		done := make(chan ClientWaitResult, 1)
		go func() {
			done <- r.Wait(context.Background(), l, time.Second)
		}()

		assert.True(t, r.Grant(h, "fh-1", 7, 0, 10))
		assert.Equal(t, WaitGranted, <-done)
	})

	t.Run("GrantReportsFalseWhenNoMatch", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		r.Register(h, "fh-1", 7, 0, 10)

		assert.False(t, r.Grant(h, "fh-2", 7, 0, 10))
	})
}

func TestClientSleepingLockRegistryCancelHost(t *testing.T) {
	r := NewClientSleepingLockRegistry()
	h1 := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
	h2 := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.2"}, "b", 2)

	l1 := r.Register(h1, "fh-1", 1, 0, 10)
	l2 := r.Register(h2, "fh-1", 2, 0, 10)

	r.CancelHost(h1)

	assert.Equal(t, WaitInterrupted, r.Wait(context.Background(), l1, time.Second))
	assert.Equal(t, WaitGranted, func() ClientWaitResult {
		r.Grant(h2, "fh-1", 2, 0, 10)
		return r.Wait(context.Background(), l2, time.Second)
	}())
}

func TestClientSleepingLockRegistryWait(t *testing.T) {
	t.Run("TimesOutWithoutGrant", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		l := r.Register(h, "fh-1", 1, 0, 10)

		result := r.Wait(context.Background(), l, 20*time.Millisecond)
		assert.Equal(t, WaitTimedOut, result)
	})

	t.Run("NonPositiveTimeoutReturnsImmediately", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		l := r.Register(h, "fh-1", 1, 0, 10)

		result := r.Wait(context.Background(), l, 0)
		assert.Equal(t, WaitTimedOut, result)
	})

	t.Run("ContextCancellationReportsInterrupted", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		l := r.Register(h, "fh-1", 1, 0, 10)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := r.Wait(ctx, l, time.Second)
		assert.Equal(t, WaitInterrupted, result)
	})

	t.Run("WaitRemovesLockFromRegistry", func(t *testing.T) {
		r := NewClientSleepingLockRegistry()
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		l := r.Register(h, "fh-1", 1, 0, 10)

		r.Wait(context.Background(), l, 10*time.Millisecond)
		assert.False(t, r.Grant(h, "fh-1", 1, 0, 10))
	})
}
