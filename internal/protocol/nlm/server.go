package nlm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nlm/handlers"
	"github.com/marmos91/dittofs/internal/protocol/rpc"
)

// Program/version duplicated locally for the same reason as the procedure
// numbers in dispatch.go: internal/protocol/nlm/types imports this package
// for its struct aliases, so importing types back here would cycle.
const programNLM uint32 = 100021
const versionNLM4 uint32 = 4

// ServerConfig holds configuration for the NLM RPC server.
type ServerConfig struct {
	// Address is the TCP/UDP bind address, e.g. ":4045".
	Address string

	// Handler processes decoded NLM procedure calls.
	Handler *handlers.Handler
}

// Server implements the NLM v4 RPC service over both TCP and UDP, using the
// same record-marking convention as the portmapper: a 4-byte fragment
// header on TCP, none on UDP.
type Server struct {
	config       ServerConfig
	tcpListener  net.Listener
	udpConn      *net.UDPConn
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a new NLM server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		config:   cfg,
		shutdown: make(chan struct{}),
	}
}

// Serve starts the NLM server on both TCP and UDP. It blocks until the
// context is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	tcpListener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen TCP %s: %w", s.config.Address, err)
	}
	s.tcpListener = tcpListener

	udpAddr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		_ = s.tcpListener.Close()
		return fmt.Errorf("resolve UDP %s: %w", s.config.Address, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = s.tcpListener.Close()
		return fmt.Errorf("listen UDP %s: %w", s.config.Address, err)
	}
	s.udpConn = udpConn

	logger.Info("NLM server started", "address", s.config.Address)

	s.wg.Add(2)
	go s.serveTCP(ctx)
	go s.serveUDP(ctx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Wait()
	return nil
}

func (s *Server) serveTCP(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("NLM TCP accept error", "error", err)
				return
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleTCPConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	clientAddr := conn.RemoteAddr().String()

	for {
		if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
			return
		}

		var headerBuf [4]byte
		if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
			if err != io.EOF {
				logger.Debug("NLM: read fragment header error", "client", clientAddr, "error", err)
			}
			return
		}

		headerVal := binary.BigEndian.Uint32(headerBuf[:])
		length := headerVal & 0x7FFFFFFF

		const maxFragmentSize = 1 << 20
		if length > maxFragmentSize {
			logger.Warn("NLM: fragment too large", "size", length, "client", clientAddr)
			return
		}

		msgBuf := make([]byte, length)
		if _, err := io.ReadFull(conn, msgBuf); err != nil {
			logger.Debug("NLM: read RPC message error", "client", clientAddr, "error", err)
			return
		}

		replyBody := s.processRPCMessage(ctx, msgBuf, clientAddr, "tcp")
		if replyBody == nil {
			continue
		}

		reply := make([]byte, 4+len(replyBody))
		binary.BigEndian.PutUint32(reply[0:4], 0x80000000|uint32(len(replyBody)))
		copy(reply[4:], replyBody)

		if _, err := conn.Write(reply); err != nil {
			logger.Debug("NLM: write TCP reply error", "client", clientAddr, "error", err)
			return
		}
	}
}

func (s *Server) serveUDP(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, 65535)

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := s.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}

		n, clientAddr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("NLM: UDP read error", "error", err)
				continue
			}
		}

		msgBuf := make([]byte, n)
		copy(msgBuf, buf[:n])
		clientStr := clientAddr.String()

		replyBody := s.processRPCMessage(ctx, msgBuf, clientStr, "udp")
		if replyBody == nil {
			continue
		}

		if _, err := s.udpConn.WriteToUDP(replyBody, clientAddr); err != nil {
			logger.Debug("NLM: write UDP reply error", "client", clientStr, "error", err)
		}
	}
}

// processRPCMessage parses an RPC call, dispatches it to the matching NLM
// procedure handler, and returns the reply body (without record marking).
// Returns nil if no reply should be sent (malformed datagram on UDP).
func (s *Server) processRPCMessage(ctx context.Context, data []byte, clientAddr, netid string) []byte {
	call, err := rpc.ReadCall(data)
	if err != nil {
		logger.Debug("NLM: parse RPC call error", "client", clientAddr, "error", err)
		return nil
	}

	if call.Program != programNLM {
		return makeErrorReplyBody(call.XID, rpc.RPCProgMismatch)
	}

	if call.Version != versionNLM4 {
		return makeProgMismatchReplyBody(call.XID, versionNLM4, versionNLM4)
	}

	proc, ok := NLMDispatchTable[call.Procedure]
	if !ok {
		logger.Debug("NLM: procedure unavailable", "procedure", call.Procedure, "client", clientAddr)
		return makeErrorReplyBody(call.XID, rpc.RPCProcUnavail)
	}

	procData, err := rpc.ReadData(data, call)
	if err != nil {
		logger.Debug("NLM: read procedure data error", "client", clientAddr, "error", err)
		return nil
	}

	hctx := &handlers.NLMHandlerContext{
		Context:    ctx,
		ClientAddr: clientAddr,
		Netid:      netid,
		AuthFlavor: call.Cred.Flavor,
	}
	if call.Cred.Flavor == rpc.AuthUnix {
		if unixAuth, err := rpc.ParseUnixAuth(call.Cred.Body); err == nil {
			uid, gid := unixAuth.UID, unixAuth.GID
			hctx.UID = &uid
			hctx.GID = &gid
			hctx.GIDs = unixAuth.GIDs
		}
	}

	logger.Debug("NLM RPC", "procedure", proc.Name, "client", clientAddr)

	respData, err := proc.Handler(hctx, s.config.Handler, procData)
	if err != nil {
		logger.Debug("NLM: handler error", "procedure", proc.Name, "client", clientAddr, "error", err)
		return makeErrorReplyBody(call.XID, rpc.RPCSystemErr)
	}

	return makeSuccessReplyBody(call.XID, respData)
}

// Stop gracefully shuts down the NLM server.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.tcpListener != nil {
			_ = s.tcpListener.Close()
		}
		if s.udpConn != nil {
			_ = s.udpConn.Close()
		}
	})
}

// Addr returns the TCP listener address (for tests and portmapper registration).
func (s *Server) Addr() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	return ""
}

func makeSuccessReplyBody(xid uint32, data []byte) []byte {
	buf := make([]byte, 24+len(data))
	binary.BigEndian.PutUint32(buf[0:4], xid)
	binary.BigEndian.PutUint32(buf[4:8], rpc.RPCReply)
	binary.BigEndian.PutUint32(buf[8:12], rpc.RPCMsgAccepted)
	binary.BigEndian.PutUint32(buf[12:16], 0)
	binary.BigEndian.PutUint32(buf[16:20], 0)
	binary.BigEndian.PutUint32(buf[20:24], rpc.RPCSuccess)
	copy(buf[24:], data)
	return buf
}

func makeErrorReplyBody(xid uint32, acceptStat uint32) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint32(buf[0:4], xid)
	binary.BigEndian.PutUint32(buf[4:8], rpc.RPCReply)
	binary.BigEndian.PutUint32(buf[8:12], rpc.RPCMsgAccepted)
	binary.BigEndian.PutUint32(buf[12:16], 0)
	binary.BigEndian.PutUint32(buf[16:20], 0)
	binary.BigEndian.PutUint32(buf[20:24], acceptStat)
	return buf
}

func makeProgMismatchReplyBody(xid uint32, low, high uint32) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint32(buf[0:4], xid)
	binary.BigEndian.PutUint32(buf[4:8], rpc.RPCReply)
	binary.BigEndian.PutUint32(buf[8:12], rpc.RPCMsgAccepted)
	binary.BigEndian.PutUint32(buf[12:16], 0)
	binary.BigEndian.PutUint32(buf[16:20], 0)
	binary.BigEndian.PutUint32(buf[20:24], rpc.RPCProgMismatch)
	binary.BigEndian.PutUint32(buf[24:28], low)
	binary.BigEndian.PutUint32(buf[28:32], high)
	return buf
}
