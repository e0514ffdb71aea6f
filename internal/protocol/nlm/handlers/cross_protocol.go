// Package handlers provides cross-protocol integration helpers for NLM handlers.
//
// This file contains helpers for NLM handlers to interact with SMB leases:
//   - Wait for SMB lease breaks before granting NLM locks
//   - Build NLM4_DENIED responses, logging the SMB holder info
//
// Cross-Protocol Behavior:
// When an NFS client requests a lock that conflicts with an SMB lease, the
// NLM handler must wait for the SMB lease break to complete before proceeding.
// This ensures data consistency when both NFS and SMB clients access the same file.
package handlers

import (
	"context"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	"github.com/marmos91/dittofs/pkg/config"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// leaseBreakPollInterval is the polling interval for lease break wait.
const leaseBreakPollInterval = 100 * time.Millisecond

// buildDeniedResponseFromSMBLease creates an NLM LOCK response for denial due to SMB lease.
func buildDeniedResponseFromSMBLease(cookie []byte, lease *lock.UnifiedLock) *LockResponse {
	holderInfo := lock.TranslateToNLMHolder(lease)

	logger.Info("NLM LOCK denied by SMB lease",
		"caller_name", holderInfo.CallerName,
		"exclusive", holderInfo.Exclusive,
		"lease_key", holderInfo.OH)

	return &LockResponse{
		Cookie: cookie,
		Status: types.NLM4Denied,
	}
}

// waitForLeaseBreak polls until a conflicting SMB write lease on handleKey
// clears, the timeout expires, or ctx is cancelled.
//
// manager.CheckAndBreakOpLocksForWrite both queries and (on first call)
// initiates the break; a non-nil error here means a break is in flight, not
// that the caller should fail the NLM request, so timeout and cancellation
// are the only paths that stop the wait.
func waitForLeaseBreak(ctx context.Context, manager *lock.Manager, handleKey string, owner lock.LockOwner, timeout time.Duration) error {
	if manager == nil {
		return nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(leaseBreakPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := manager.CheckAndBreakOpLocksForWrite(handleKey, &owner); err == nil {
				return nil
			}

			if time.Now().After(deadline) {
				logger.Info("NLM lease break wait timeout - proceeding",
					"handle", handleKey, "timeout", timeout)
				return nil
			}
		}
	}
}

// getLeaseBreakTimeout returns the configured lease break timeout, or a
// 35s default when cfg is nil or unset.
func getLeaseBreakTimeout(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Lock.LeaseBreakTimeout > 0 {
		return cfg.Lock.LeaseBreakTimeout
	}
	return 35 * time.Second
}

// checkForSMBLeaseConflicts checks for SMB write leases that would conflict
// with an incoming NLM lock request, initiating a break and waiting for it
// to clear before the caller proceeds with AddUnifiedLock.
func checkForSMBLeaseConflicts(ctx context.Context, manager *lock.Manager, handleKey string, owner lock.LockOwner, cfg *config.Config) error {
	if manager == nil {
		return nil
	}

	if err := manager.CheckAndBreakOpLocksForWrite(handleKey, &owner); err == nil {
		return nil
	}

	return waitForLeaseBreak(ctx, manager, handleKey, owner, getLeaseBreakTimeout(cfg))
}

// buildDeniedResponseFromByteRangeLock creates an NLM LOCK response for denial due to byte-range lock.
func buildDeniedResponseFromByteRangeLock(cookie []byte, conflict *lock.UnifiedLock) *LockResponse {
	holderInfo := lock.TranslateByteRangeLockToNLMHolder(conflict)

	logger.Debug("NLM LOCK denied by byte-range lock",
		"caller_name", holderInfo.CallerName,
		"offset", holderInfo.Offset,
		"length", holderInfo.Length,
		"exclusive", holderInfo.Exclusive)

	return &LockResponse{
		Cookie: cookie,
		Status: types.NLM4Denied,
	}
}
