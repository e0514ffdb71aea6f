package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/snapshot"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	in := []snapshot.HostSummary{
		{Sysid: 1, CallerName: "client-a", Netid: "tcp", PeerAddr: "10.0.0.1", SMState: 3},
		{Sysid: 2, CallerName: "client-b", Netid: "tcp", PeerAddr: "10.0.0.2", SMState: 1},
	}
	require.NoError(t, store.Write(in))

	out, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestReadEmptyStore(t *testing.T) {
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	out, err := store.Read()
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSummarizeMatchesHostIdentity(t *testing.T) {
	sysids, err := nlmcore.NewSysidAllocator(1, 10)
	require.NoError(t, err)
	hosts := nlmcore.NewHostRegistry(sysids, 0)

	h := hosts.FindCreate(nlmcore.PeerAddr{Netid: "tcp", Addr: "10.0.0.5:908"}, "peer-5")
	h.RecordSMState(7)

	summaries := snapshot.Summarize(hosts.All())
	require.Len(t, summaries, 1)
	require.Equal(t, uint32(h.Sysid()), summaries[0].Sysid)
	require.Equal(t, "peer-5", summaries[0].CallerName)
	require.Equal(t, uint32(7), summaries[0].SMState)
}
