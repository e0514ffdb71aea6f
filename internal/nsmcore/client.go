// Package nsmcore implements the outbound half of the NSM relationship: the
// RPC calls this NLM server issues to the local status monitor to register
// or clear interest in a peer's crash state. The inbound half (serving
// MON/UNMON/STAT/NOTIFY requests from others) lives in protocol/nsm; this
// package is the client making those same calls against that local peer.
package nsmcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	nsmtypes "github.com/marmos91/dittofs/internal/protocol/nsm/types"
	nsm_xdr "github.com/marmos91/dittofs/internal/protocol/nsm/xdr"
	"github.com/marmos91/dittofs/internal/protocol/rpc"
)

const rpcVersion = 2

// Config configures a Client.
type Config struct {
	// Addr is the local status monitor's bound address (host:port). Per
	// convention this is always loopback, since NLM only ever talks to the
	// NSM instance on the same host.
	Addr string

	// MyName is this server's own identity, sent in my_id as the mon_name
	// the local SM would use if it ever had to report us to a peer.
	MyName string

	// MyProg, MyVers, MyProc are the callback coordinates the local SM
	// should use when mon_name's state changes. By convention this names
	// the SM program's own NOTIFY procedure (SM_PROG/SM_VERSION/SM_NOTIFY):
	// the delivered callback is then wire-identical to a real SM_NOTIFY,
	// deliverable to any NSM-protocol listener.
	MyProg uint32
	MyVers uint32
	MyProc uint32

	// Retries is how many additional times to attempt a call after an
	// initial dial/IO failure. Default 0 (no retries).
	Retries int

	// Timeout is the per-attempt dial+IO deadline. Default 5s.
	Timeout time.Duration
}

// Client issues MON, UNMON, UNMON_ALL, STAT and SIMU_CRASH calls to the
// local status monitor. A fresh TCP connection is made per call; nothing
// is cached or pooled, matching the style of the NLM/NSM callback clients.
type Client struct {
	cfg Config
}

// NewClient builds a Client from cfg, applying defaults for a zero Timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg}
}

// Mon issues SM_MON for monName (typically a peer host's caller name),
// registering this server to receive SM_NOTIFY if that host restarts.
func (c *Client) Mon(ctx context.Context, monName string) error {
	mon := &nsmtypes.Mon{
		MonID: nsmtypes.MonID{
			MonName: monName,
			MyID: nsmtypes.MyID{
				MyName: c.cfg.MyName,
				MyProg: c.cfg.MyProg,
				MyVers: c.cfg.MyVers,
				MyProc: c.cfg.MyProc,
			},
		},
	}

	args, err := nsm_xdr.EncodeMon(mon)
	if err != nil {
		return fmt.Errorf("encode mon: %w", err)
	}

	reply, err := c.call(ctx, nsmtypes.SMProcMon, args)
	if err != nil {
		return err
	}

	res, err := nsm_xdr.DecodeSMStatRes(bytes.NewReader(reply))
	if err != nil {
		return fmt.Errorf("decode sm_stat_res: %w", err)
	}
	if res.Result != nsmtypes.StatSucc {
		return fmt.Errorf("SM_MON for %q rejected by local SM", monName)
	}
	return nil
}

// Unmon issues SM_UNMON for monName, clearing a previous Mon registration.
func (c *Client) Unmon(ctx context.Context, monName string) error {
	monID := &nsmtypes.MonID{
		MonName: monName,
		MyID: nsmtypes.MyID{
			MyName: c.cfg.MyName,
			MyProg: c.cfg.MyProg,
			MyVers: c.cfg.MyVers,
			MyProc: c.cfg.MyProc,
		},
	}

	buf := new(bytes.Buffer)
	if err := nsm_xdr.EncodeMonID(buf, monID); err != nil {
		return fmt.Errorf("encode mon_id: %w", err)
	}

	_, err := c.call(ctx, nsmtypes.SMProcUnmon, buf.Bytes())
	return err
}

// UnmonAll issues SM_UNMON_ALL, clearing every Mon registration this client
// holds with the local SM (identified by its my_id callback coordinates,
// not a specific host). Used during shutdown.
func (c *Client) UnmonAll(ctx context.Context) error {
	myID := &nsmtypes.MyID{
		MyName: c.cfg.MyName,
		MyProg: c.cfg.MyProg,
		MyVers: c.cfg.MyVers,
		MyProc: c.cfg.MyProc,
	}

	buf := new(bytes.Buffer)
	if err := nsm_xdr.EncodeMyID(buf, myID); err != nil {
		return fmt.Errorf("encode my_id: %w", err)
	}

	_, err := c.call(ctx, nsmtypes.SMProcUnmonAll, buf.Bytes())
	return err
}

// Stat queries the local SM's current state counter for monName without
// establishing monitoring.
func (c *Client) Stat(ctx context.Context, monName string) (int32, error) {
	args, err := nsm_xdr.EncodeSmName(&nsmtypes.SMName{Name: monName})
	if err != nil {
		return 0, fmt.Errorf("encode sm_name: %w", err)
	}

	reply, err := c.call(ctx, nsmtypes.SMProcStat, args)
	if err != nil {
		return 0, err
	}

	res, err := nsm_xdr.DecodeSMStatRes(bytes.NewReader(reply))
	if err != nil {
		return 0, fmt.Errorf("decode sm_stat_res: %w", err)
	}
	return res.State, nil
}

// SimuCrash issues SM_SIMU_CRASH, asking the local SM to simulate a crash
// (bump its state counter and re-notify registered monitors) for testing.
func (c *Client) SimuCrash(ctx context.Context) error {
	_, err := c.call(ctx, nsmtypes.SMProcSimuCrash, nil)
	return err
}

// call dials the local SM fresh, sends one RPC, and returns the raw result
// body of the reply. Retries cfg.Retries additional times on dial/IO
// failure, which is what cfg.Retries/cfg.Timeout exist to bound: the local
// SM may not have finished starting up yet when the first MON is issued.
func (c *Client) call(ctx context.Context, proc uint32, args []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			logger.Debug("NSM client retrying", "proc", proc, "attempt", attempt, "error", lastErr)
		}

		reply, err := c.callOnce(ctx, proc, args)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("NSM call proc %d to %s failed after %d attempts: %w", proc, c.cfg.Addr, c.cfg.Retries+1, lastErr)
}

func (c *Client) callOnce(ctx context.Context, proc uint32, args []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(callCtx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial local SM %s: %w", c.cfg.Addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := callCtx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	xid := uint32(time.Now().UnixNano() & 0xFFFFFFFF)
	callMsg, err := buildRPCCallMessage(xid, nsmtypes.ProgramNSM, nsmtypes.SMVersion1, proc, args)
	if err != nil {
		return nil, fmt.Errorf("build call message: %w", err)
	}

	if _, err := conn.Write(addRecordMark(callMsg)); err != nil {
		return nil, fmt.Errorf("write call: %w", err)
	}

	body, acceptStat, err := readReply(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if acceptStat != rpc.RPCSuccess {
		return nil, fmt.Errorf("local SM rejected call: accept_stat=%d", acceptStat)
	}

	return body, nil
}

// buildRPCCallMessage builds an RPC CALL message with AUTH_NULL credentials,
// the same wire shape used by the NLM/NSM callback clients.
func buildRPCCallMessage(xid, prog, vers, proc uint32, args []byte) ([]byte, error) {
	var buf bytes.Buffer

	for _, v := range []uint32{xid, uint32(rpc.RPCCall), rpcVersion, prog, vers, proc, uint32(rpc.AuthNull), 0, uint32(rpc.AuthNull), 0} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("write call header: %w", err)
		}
	}

	if _, err := buf.Write(args); err != nil {
		return nil, fmt.Errorf("write args: %w", err)
	}

	return buf.Bytes(), nil
}

// addRecordMark prefixes msg with a 4-byte RFC 5531 record-marking header,
// flagged as the only (and therefore last) fragment.
func addRecordMark(msg []byte) []byte {
	result := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(result[0:4], uint32(len(msg))|0x80000000)
	copy(result[4:], msg)
	return result
}

// readReply reads one record-marked RPC reply and returns the decoded
// result body along with the accept_stat. Only the MSG_ACCEPTED shape is
// understood; the local SM never returns MSG_DENIED.
func readReply(conn net.Conn) ([]byte, uint32, error) {
	var headerBuf [4]byte
	if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("read fragment header: %w", err)
	}

	fragLen := binary.BigEndian.Uint32(headerBuf[:]) & 0x7FFFFFFF
	if fragLen > 1<<20 {
		return nil, 0, fmt.Errorf("reply fragment too large: %d", fragLen)
	}

	body := make([]byte, fragLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, 0, fmt.Errorf("read fragment body: %w", err)
	}

	// xid(4) msgtype(4) reply_stat(4) verf_flavor(4) verf_len(4) [verf...] accept_stat(4)
	if len(body) < 20 {
		return nil, 0, fmt.Errorf("reply too short: %d bytes", len(body))
	}
	verfLen := binary.BigEndian.Uint32(body[16:20])
	paddedVerfLen := (verfLen + 3) &^ 3
	acceptStatOff := 20 + int(paddedVerfLen)
	if len(body) < acceptStatOff+4 {
		return nil, 0, fmt.Errorf("reply truncated before accept_stat")
	}

	acceptStat := binary.BigEndian.Uint32(body[acceptStatOff : acceptStatOff+4])
	return body[acceptStatOff+4:], acceptStat, nil
}
