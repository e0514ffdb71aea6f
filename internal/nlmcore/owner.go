package nlmcore

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ownerPrefix is the namespace tag on every lock owner ID this engine
// hands to the local lock engine, so NLM-originated locks are
// distinguishable from locks taken by other protocols sharing the same
// file (SMB leases, local opens).
const ownerPrefix = "nlm"

// OwnerID builds the opaque owner identifier passed to the local lock
// engine for a remote lock: "nlm:<sysid>:<svid>:<oh-hex>". Unlike a
// caller-name-keyed scheme, keying on sysid lets host-level cleanup
// (notify_server, GC) recognize every lock belonging to a host with a
// simple prefix match, since sysid -- not caller_name -- is the stable,
// unique identity the data model assigns to a host.
func OwnerID(sysid Sysid, svid int32, oh []byte) string {
	return fmt.Sprintf("%s:%d:%d:%s", ownerPrefix, sysid, svid, hex.EncodeToString(oh))
}

// sysidPrefix returns the owner-ID prefix that every lock belonging to
// sysid carries, for prefix-matching in host cleanup paths.
func sysidPrefix(sysid Sysid) string {
	return fmt.Sprintf("%s:%d:", ownerPrefix, sysid)
}

// OwnerSysid extracts the sysid embedded in an owner ID built by OwnerID.
// Used by the GRANTED handler, which must route an inbound callback back
// to the host solely from the opaque owner handle.
func OwnerSysid(ownerID string) (Sysid, bool) {
	parts := strings.SplitN(ownerID, ":", 4)
	if len(parts) < 2 || parts[0] != ownerPrefix {
		return 0, false
	}
	v, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return Sysid(v), true
}
