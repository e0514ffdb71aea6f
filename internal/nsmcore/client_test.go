package nsmcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittofs/internal/nsmcore"
	nsmproto "github.com/marmos91/dittofs/internal/protocol/nsm"
	"github.com/marmos91/dittofs/internal/protocol/nsm/handlers"
	nsmtypes "github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
	"github.com/stretchr/testify/require"
)

func startTestSM(t *testing.T) (*nsmproto.Server, *handlers.Handler) {
	t.Helper()

	h := handlers.NewHandler(handlers.HandlerConfig{
		Tracker: lock.NewConnectionTracker(lock.DefaultConnectionTrackerConfig()),
	})
	srv := nsmproto.NewServer(nsmproto.ServerConfig{Address: "127.0.0.1:0", Handler: h})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})

	// Give the accept loop a moment to start.
	time.Sleep(10 * time.Millisecond)

	return srv, h
}

func testClient(addr string) *nsmcore.Client {
	return nsmcore.NewClient(nsmcore.Config{
		Addr:    addr,
		MyName:  "nlmd-test",
		MyProg:  nsmtypes.ProgramNSM,
		MyVers:  nsmtypes.SMVersion1,
		MyProc:  nsmtypes.SMProcNotify,
		Timeout: 2 * time.Second,
	})
}

func TestClient_MonThenUnmon(t *testing.T) {
	srv, h := startTestSM(t)
	c := testClient(srv.Addr())

	require.NoError(t, c.Mon(context.Background(), "peer-a"))
	require.Equal(t, 1, h.GetTracker().GetClientCount(""))

	require.NoError(t, c.Unmon(context.Background(), "peer-a"))
}

func TestClient_Stat(t *testing.T) {
	srv, h := startTestSM(t)
	c := testClient(srv.Addr())

	state, err := c.Stat(context.Background(), "peer-a")
	require.NoError(t, err)
	require.Equal(t, h.GetServerState(), state)
}

func TestClient_UnmonAll(t *testing.T) {
	srv, _ := startTestSM(t)
	c := testClient(srv.Addr())

	require.NoError(t, c.Mon(context.Background(), "peer-a"))
	require.NoError(t, c.Mon(context.Background(), "peer-b"))
	require.NoError(t, c.UnmonAll(context.Background()))
}

func TestClient_SimuCrash(t *testing.T) {
	// This test daemon's own SM has no SIMU_CRASH handler (it is a
	// debugging-only procedure never issued against ourselves in
	// production); the client still speaks the wire call correctly and
	// surfaces the resulting PROC_UNAVAIL as an error rather than hanging.
	srv, _ := startTestSM(t)
	c := testClient(srv.Addr())

	err := c.SimuCrash(context.Background())
	require.Error(t, err)
}

func TestClient_MonFailsAfterRetriesWithoutListener(t *testing.T) {
	// No listener behind this address yet; Mon should exhaust its retries
	// and return an error rather than hang.
	c := nsmcore.NewClient(nsmcore.Config{
		Addr:    "127.0.0.1:1",
		MyName:  "nlmd-test",
		MyProg:  nsmtypes.ProgramNSM,
		MyVers:  nsmtypes.SMVersion1,
		MyProc:  nsmtypes.SMProcNotify,
		Retries: 1,
		Timeout: 200 * time.Millisecond,
	})

	err := c.Mon(context.Background(), "peer-a")
	require.Error(t, err)
}
