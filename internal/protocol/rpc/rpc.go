// Package rpc implements the ONC RPC (RFC 5531) message envelope shared by
// every protocol handler in this service: parsing an inbound CALL message's
// header, pulling out the AUTH_UNIX credential, and building a PROG_MISMATCH
// reply (MakeProgMismatchReply).
//
// Success and error reply bodies, and the record marking (the 4-byte TCP
// fragment header) around replies, live with each service's Server (see the
// portmap, nlm, and nsm packages). MakeProgMismatchReply is the exception:
// it returns a message that already carries the record-marking header.
package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittofs/internal/protocol/xdr"
)

// Message types (RFC 5531 Section 9).
const (
	RPCCall  uint32 = 0
	RPCReply uint32 = 1
)

// Reply statuses (RFC 5531 Section 9).
const (
	RPCMsgAccepted uint32 = 0
	RPCMsgDenied   uint32 = 1
)

// Accept statuses (RFC 5531 Section 9).
const (
	RPCSuccess      uint32 = 0
	RPCProgUnavail  uint32 = 1
	RPCProgMismatch uint32 = 2
	RPCProcUnavail  uint32 = 3
	RPCGarbageArgs  uint32 = 4
	RPCSystemErr    uint32 = 5
)

// Authentication flavors (RFC 5531 Section 8.2).
const (
	AuthNull  uint32 = 0
	AuthUnix  uint32 = 1
	AuthShort uint32 = 2
	AuthDES   uint32 = 3
)

// maxGIDs bounds AUTH_UNIX's supplementary group list. RFC 5531 doesn't fix
// a number; 16 matches what every NFS/NLM client in practice sends.
const maxGIDs = 16

// maxMachineNameLen bounds AUTH_UNIX's machine name field.
const maxMachineNameLen = 255

// Call is a parsed RPC CALL message header. Procedure arguments are not
// decoded here; ReadData returns the remaining bytes for the caller's own
// XDR decoder to consume.
type Call struct {
	XID        uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       AuthFlavor
	Verf       AuthFlavor

	// headerLen is the number of bytes consumed decoding the call header
	// (through the verifier), used by ReadData to locate procedure args.
	headerLen int
}

// AuthFlavor is an opaque authentication credential/verifier as it appears
// on the wire: a flavor tag plus its opaque body. UnixAuth is the only
// flavor this service decodes further; others pass through unexamined
// since the transport is expected to be used over a trusted loopback/LAN.
type AuthFlavor struct {
	Flavor uint32
	Body   []byte
}

// UnixAuth is the decoded body of an AUTH_UNIX credential (RFC 5531
// Section 9.2).
type UnixAuth struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

func (a *UnixAuth) String() string {
	return fmt.Sprintf("UnixAuth{machine=%s, uid=%d, gid=%d, gids=%v}", a.MachineName, a.UID, a.GID, a.GIDs)
}

// ParseUnixAuth decodes an AUTH_UNIX credential body (the opaque bytes
// following the AUTH_UNIX flavor tag and length in a credential or
// verifier field).
//
// Wire format (RFC 5531 Section 9.2):
//
//	stamp:        [uint32]
//	machinename:  [length:uint32][data][padding]
//	uid:          [uint32]
//	gid:          [uint32]
//	gids:         [count:uint32][uint32...]
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("rpc: empty AUTH_UNIX body")
	}

	r := bytes.NewReader(body)

	stamp, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode stamp: %w", err)
	}

	nameLen, err := peekUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode machine name length: %w", err)
	}
	if nameLen > maxMachineNameLen {
		return nil, fmt.Errorf("rpc: machine name too long: %d > %d", nameLen, maxMachineNameLen)
	}
	machineName, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode machine name: %w", err)
	}

	uid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode uid: %w", err)
	}
	gid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode gid: %w", err)
	}

	gidCount, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode gid count: %w", err)
	}
	if gidCount > maxGIDs {
		return nil, fmt.Errorf("rpc: too many gids: %d > %d", gidCount, maxGIDs)
	}

	gids := make([]uint32, gidCount)
	for i := range gids {
		gids[i], err = xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("decode gid[%d]: %w", i, err)
		}
	}

	return &UnixAuth{
		Stamp:       stamp,
		MachineName: machineName,
		UID:         uid,
		GID:         gid,
		GIDs:        gids,
	}, nil
}

// peekUint32 reads the next uint32 from r without consuming it, re-wrapping
// the reader's position. bytes.Reader doesn't support unread-multi, so this
// reads and seeks back by 4.
func peekUint32(r *bytes.Reader) (uint32, error) {
	v, err := xdr.DecodeUint32(r)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(-4, 1); err != nil {
		return 0, err
	}
	return v, nil
}

// ReadCall parses the RPC CALL header (xid through the auth verifier) from
// a raw RPC message. data is everything the transport delivered for one
// message (record marking already stripped).
func ReadCall(data []byte) (*Call, error) {
	r := bytes.NewReader(data)

	xid, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode xid: %w", err)
	}

	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode msg type: %w", err)
	}
	if msgType != RPCCall {
		return nil, fmt.Errorf("rpc: not a CALL message (msg_type=%d)", msgType)
	}

	rpcVersion, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode rpc version: %w", err)
	}

	program, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	version, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	procedure, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode procedure: %w", err)
	}

	cred, err := readAuthFlavor(r)
	if err != nil {
		return nil, fmt.Errorf("decode cred: %w", err)
	}
	verf, err := readAuthFlavor(r)
	if err != nil {
		return nil, fmt.Errorf("decode verf: %w", err)
	}

	return &Call{
		XID:        xid,
		RPCVersion: rpcVersion,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       cred,
		Verf:       verf,
		headerLen:  len(data) - r.Len(),
	}, nil
}

// readAuthFlavor decodes an opaque_auth structure: a flavor tag followed by
// variable-length opaque data.
func readAuthFlavor(r *bytes.Reader) (AuthFlavor, error) {
	flavor, err := xdr.DecodeUint32(r)
	if err != nil {
		return AuthFlavor{}, fmt.Errorf("decode flavor: %w", err)
	}
	body, err := xdr.DecodeOpaque(r)
	if err != nil {
		return AuthFlavor{}, fmt.Errorf("decode body: %w", err)
	}
	return AuthFlavor{Flavor: flavor, Body: body}, nil
}

// ReadData returns the procedure argument bytes that follow a CALL message's
// header, for the caller to decode with its own XDR decoder.
func ReadData(data []byte, call *Call) ([]byte, error) {
	if call.headerLen > len(data) {
		return nil, fmt.Errorf("rpc: call header length %d exceeds message length %d", call.headerLen, len(data))
	}
	return data[call.headerLen:], nil
}

// MakeProgMismatchReply builds a complete RPC reply message (with 4-byte
// TCP record-marking header) for a PROG_MISMATCH condition: the program is
// known but the requested version isn't supported.
//
// Wire format (RFC 5531 Section 9):
//
//	xid(4) + msg_type=REPLY(4) + reply_state=MSG_ACCEPTED(4) +
//	verf_flavor=AUTH_NULL(4) + verf_len=0(4) + accept_stat=PROG_MISMATCH(4) +
//	low(4) + high(4)
func MakeProgMismatchReply(xid, low, high uint32) ([]byte, error) {
	if low > high {
		return nil, fmt.Errorf("rpc: invalid version range: low (%d) > high (%d)", low, high)
	}

	body := make([]byte, 32)
	binary.BigEndian.PutUint32(body[0:4], xid)
	binary.BigEndian.PutUint32(body[4:8], RPCReply)
	binary.BigEndian.PutUint32(body[8:12], RPCMsgAccepted)
	binary.BigEndian.PutUint32(body[12:16], AuthNull)
	binary.BigEndian.PutUint32(body[16:20], 0)
	binary.BigEndian.PutUint32(body[20:24], RPCProgMismatch)
	binary.BigEndian.PutUint32(body[24:28], low)
	binary.BigEndian.PutUint32(body[28:32], high)

	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed[0:4], 0x80000000|uint32(len(body)))
	copy(framed[4:], body)

	return framed, nil
}
