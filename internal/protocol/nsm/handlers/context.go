// Package handlers implements NSM (Network Status Monitor) procedure handlers.
//
// NSM is the crash recovery protocol NLM clients and servers use to detect
// peer restarts: SM_MON registers interest in a host's state counter,
// SM_NOTIFY delivers a state change to every registered monitor.
package handlers

import "context"

// NSMHandlerContext carries per-call state into an NSM procedure handler.
type NSMHandlerContext struct {
	// Context is the Go context for cancellation/timeout.
	Context context.Context

	// ClientAddr is the remote address the call arrived from.
	ClientAddr string
}
