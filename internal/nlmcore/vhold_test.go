package nlmcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostGetVhold(t *testing.T) {
	t.Run("CreatesOnFirstLookup", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		require.NotNil(t, vh)
		assert.Equal(t, "fh-1", vh.FileID())
	})

	t.Run("ReturnsSameVholdForSameFileID", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh1 := h.Get("fh-1")
		vh2 := h.Get("fh-1")
		assert.Same(t, vh1, vh2)
	})

	t.Run("DistinctFileIDsGetDistinctVholds", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh1 := h.Get("fh-1")
		vh2 := h.Get("fh-2")
		assert.NotSame(t, vh1, vh2)
	})
}

func TestVholdIdleAndReap(t *testing.T) {
	t.Run("IdleAfterSoleReferenceReleased", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		assert.False(t, vh.idle())

		h.PutVhold(vh)
		assert.True(t, vh.idle())
	})

	t.Run("ReapRemovesIdleNonBusyVholds", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		h.PutVhold(vh)

		h.reapVholds(func(fileID string, sysid Sysid) bool { return false })
		assert.False(t, h.hasVholds())
	})

	t.Run("ReapKeepsBusyVholds", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		h.PutVhold(vh)

		h.reapVholds(func(fileID string, sysid Sysid) bool { return true })
		assert.True(t, h.hasVholds())
	})

	t.Run("ReapKeepsVholdsWithSleepingRequests", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		h.PutVhold(vh)
		vh.RegisterSleeping(ServerSleepingRequest{Offset: 0, Length: 10, Pid: 1})

		h.reapVholds(func(fileID string, sysid Sysid) bool { return false })
		assert.True(t, h.hasVholds())
	})
}

func TestSleepingRequestRegistry(t *testing.T) {
	req := ServerSleepingRequest{Offset: 0, Length: 100, Pid: 42, Exclusive: true}

	t.Run("RegisterIsIdempotent", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")

		assert.True(t, vh.RegisterSleeping(req))
		assert.False(t, vh.RegisterSleeping(req))
	})

	t.Run("UnregisterRemovesMatch", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		vh.RegisterSleeping(req)

		assert.True(t, vh.UnregisterSleeping(req))
		assert.False(t, vh.UnregisterSleeping(req))
	})

	t.Run("DrainRemovesAndReturnsAll", func(t *testing.T) {
		h := newHost(PeerAddr{Netid: "tcp", Addr: "10.0.0.1"}, "a", 1)
		vh := h.Get("fh-1")
		vh.RegisterSleeping(req)
		vh.RegisterSleeping(ServerSleepingRequest{Offset: 100, Length: 10, Pid: 43})

		drained := vh.drainSleeping()
		assert.Len(t, drained, 2)
		assert.Empty(t, vh.drainSleeping())
	})
}
