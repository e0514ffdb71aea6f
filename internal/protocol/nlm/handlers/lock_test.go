package handlers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
	"github.com/stretchr/testify/require"
)

// newTestRegistryHandler builds a Handler against a live nlmcore.Registry
// and lock.Manager, past its (near-instant) grace period, so tests can
// exercise the full LOCK/TEST/CANCEL/UNLOCK path without a real transport.
func newTestRegistryHandler(t *testing.T) *Handler {
	t.Helper()

	cfg := nlmcore.Config{
		GracePeriod:       time.Millisecond,
		IdlePeriod:        time.Minute,
		RetransmitTimeout: time.Minute,
		GCInterval:        time.Minute,
		MinSysid:          1,
		MaxSysid:          1000,
	}
	registry, err := nlmcore.NewRegistry(cfg, lock.NewManager(), nil, nil, nil)
	require.NoError(t, err)
	registry.Start(context.Background())
	time.Sleep(5 * time.Millisecond)

	return &Handler{
		registry: registry,
		grants:   newGrantTracker(),
	}
}

func testLockReq(callerName string, fh, oh []byte, svid int32, offset, length uint64, exclusive, block bool) *LockRequest {
	return &LockRequest{
		Cookie:    []byte("cookie"),
		Block:     block,
		Exclusive: exclusive,
		Lock: types.NLM4Lock{
			CallerName: callerName,
			FH:         fh,
			OH:         oh,
			Svid:       svid,
			Offset:     offset,
			Length:     length,
		},
	}
}

func TestLock_NonBlockingGrantedThenConflictDenied(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()

	fh := []byte("file-1")

	resp, err := h.Lock(ctx, testLockReq("client-a", fh, []byte("oh-a"), 1, 0, 100, true, false))
	require.NoError(t, err)
	require.Equal(t, types.NLM4Granted, resp.Status)

	// A second exclusive lock on the same overlapping range from a
	// different owner must conflict.
	resp2, err := h.Lock(ctx, testLockReq("client-b", fh, []byte("oh-b"), 2, 50, 100, true, false))
	require.NoError(t, err)
	require.Equal(t, types.NLM4Denied, resp2.Status)
}

func TestLock_BlockingQueuesThenUnlockGrants(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()
	fh := []byte("file-2")

	// sendGranted fires a real network callback; stub it so the test
	// doesn't depend on a reachable client callback port.
	var granted int32
	orig := sendGrantedCallback
	sendGrantedCallback = func(_ context.Context, _ string, _, _ uint32, _ *types.NLM4GrantedArgs) error {
		atomic.AddInt32(&granted, 1)
		return nil
	}
	defer func() { sendGrantedCallback = orig }()

	ownerAReq := testLockReq("client-a", fh, []byte("oh-a"), 1, 0, 100, true, false)
	resp, err := h.Lock(ctx, ownerAReq)
	require.NoError(t, err)
	require.Equal(t, types.NLM4Granted, resp.Status)

	ownerBReq := testLockReq("client-b", fh, []byte("oh-b"), 2, 0, 100, true, true)
	resp2, err := h.Lock(ctx, ownerBReq)
	require.NoError(t, err)
	require.Equal(t, types.NLM4Blocked, resp2.Status)

	unlockReq := &UnlockRequest{Cookie: []byte("c"), Lock: ownerAReq.Lock}
	_, err = h.Unlock(ctx, unlockReq)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&granted) == 1
	}, time.Second, time.Millisecond)
}

func TestTest_NoConflictReportsGranted(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()
	fh := []byte("file-3")

	resp, err := h.Test(ctx, &TestRequest{
		Cookie:    []byte("c"),
		Exclusive: true,
		Lock:      testLockReq("client-a", fh, []byte("oh-a"), 1, 0, 100, true, false).Lock,
	})
	require.NoError(t, err)
	require.Equal(t, types.NLM4Granted, resp.Status)
	require.Nil(t, resp.Holder)
}

func TestTest_ConflictReportsHolder(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()
	fh := []byte("file-4")

	_, err := h.Lock(ctx, testLockReq("client-a", fh, []byte("oh-a"), 1, 0, 100, true, false))
	require.NoError(t, err)

	resp, err := h.Test(ctx, &TestRequest{
		Cookie:    []byte("c"),
		Exclusive: true,
		Lock:      testLockReq("client-b", fh, []byte("oh-b"), 2, 0, 100, true, false).Lock,
	})
	require.NoError(t, err)
	require.Equal(t, types.NLM4Denied, resp.Status)
	require.NotNil(t, resp.Holder)
	require.Equal(t, int32(1), resp.Holder.Svid)
}

func TestCancel_RemovesQueuedWaiter(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()
	fh := []byte("file-5")

	_, err := h.Lock(ctx, testLockReq("client-a", fh, []byte("oh-a"), 1, 0, 100, true, false))
	require.NoError(t, err)

	blockedReq := testLockReq("client-b", fh, []byte("oh-b"), 2, 0, 100, true, true)
	resp, err := h.Lock(ctx, blockedReq)
	require.NoError(t, err)
	require.Equal(t, types.NLM4Blocked, resp.Status)

	cancelResp, err := h.Cancel(ctx, &CancelRequest{
		Cookie:    []byte("c"),
		Block:     true,
		Exclusive: true,
		Lock:      blockedReq.Lock,
	})
	require.NoError(t, err)
	require.Equal(t, types.NLM4Granted, cancelResp.Status)

	waiters := h.grants.drain(string(fh))
	require.Empty(t, waiters)
}

func TestUnlock_NoMatchingLockStillGrantsResponse(t *testing.T) {
	h := newTestRegistryHandler(t)
	ctx := newTestContext()

	resp, err := h.Unlock(ctx, &UnlockRequest{
		Cookie: []byte("c"),
		Lock:   testLockReq("client-a", []byte("file-6"), []byte("oh-a"), 1, 0, 100, true, false).Lock,
	})
	require.NoError(t, err)
	require.Equal(t, types.NLM4Granted, resp.Status)
}
