package nsm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nsm/handlers"
	"github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/internal/protocol/rpc"
)

// ServerConfig holds configuration for the NSM RPC server.
type ServerConfig struct {
	// Address is the TCP/UDP bind address. Conventionally loopback-only
	// and ephemeral-ported, since NLM only ever talks to the local NSM.
	Address string

	// Handler processes decoded NSM procedure calls.
	Handler *handlers.Handler
}

// Server implements the NSM RPC service over both TCP and UDP.
type Server struct {
	config       ServerConfig
	tcpListener  net.Listener
	udpConn      *net.UDPConn
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a new NSM server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		config:   cfg,
		shutdown: make(chan struct{}),
	}
}

// SetHandler replaces the RPC handler. Exists so a caller can Listen first
// (to learn the bound address, e.g. for building the outbound NSM client
// that needs to dial this same local SM) and construct the handler
// afterward, before Serve starts accepting requests.
func (s *Server) SetHandler(h *handlers.Handler) {
	s.config.Handler = h
}

// Listen binds the TCP and UDP sockets without starting the accept loops.
// Idempotent. Callers that need Addr() to be valid before requests start
// flowing (the outbound NSM client needs the bound loopback port to dial)
// should call Listen before Serve; Serve calls it itself if not already done.
func (s *Server) Listen() error {
	if s.tcpListener != nil {
		return nil
	}

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

	return nil
}

// Serve starts the NSM server on both TCP and UDP. It blocks until the
// context is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	logger.Info("NSM server started", "address", s.tcpListener.Addr().String())

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
				logger.Debug("NSM TCP accept error", "error", err)
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

	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return
	}

	var headerBuf [4]byte
	if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
		if err != io.EOF {
			logger.Debug("NSM: read fragment header error", "client", clientAddr, "error", err)
		}
		return
	}

	headerVal := binary.BigEndian.Uint32(headerBuf[:])
	length := headerVal & 0x7FFFFFFF

	const maxFragmentSize = 1 << 16
	if length > maxFragmentSize {
		logger.Warn("NSM: fragment too large", "size", length, "client", clientAddr)
		return
	}

	msgBuf := make([]byte, length)
	if _, err := io.ReadFull(conn, msgBuf); err != nil {
		logger.Debug("NSM: read RPC message error", "client", clientAddr, "error", err)
		return
	}

	replyBody := s.processRPCMessage(ctx, msgBuf, clientAddr)
	if replyBody == nil {
		return
	}

	reply := make([]byte, 4+len(replyBody))
	binary.BigEndian.PutUint32(reply[0:4], 0x80000000|uint32(len(replyBody)))
	copy(reply[4:], replyBody)

	if _, err := conn.Write(reply); err != nil {
		logger.Debug("NSM: write TCP reply error", "client", clientAddr, "error", err)
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
				logger.Debug("NSM: UDP read error", "error", err)
				continue
			}
		}

		msgBuf := make([]byte, n)
		copy(msgBuf, buf[:n])
		clientStr := clientAddr.String()

		replyBody := s.processRPCMessage(ctx, msgBuf, clientStr)
		if replyBody == nil {
			continue
		}

		if _, err := s.udpConn.WriteToUDP(replyBody, clientAddr); err != nil {
			logger.Debug("NSM: write UDP reply error", "client", clientStr, "error", err)
		}
	}
}

func (s *Server) processRPCMessage(ctx context.Context, data []byte, clientAddr string) []byte {
	call, err := rpc.ReadCall(data)
	if err != nil {
		logger.Debug("NSM: parse RPC call error", "client", clientAddr, "error", err)
		return nil
	}

	if call.Program != types.ProgramNSM {
		return makeErrorReplyBody(call.XID, rpc.RPCProgMismatch)
	}

	if call.Version != types.SMVersion1 {
		return makeProgMismatchReplyBody(call.XID, types.SMVersion1, types.SMVersion1)
	}

	proc, ok := NSMDispatchTable[call.Procedure]
	if !ok {
		logger.Debug("NSM: procedure unavailable", "procedure", call.Procedure, "client", clientAddr)
		return makeErrorReplyBody(call.XID, rpc.RPCProcUnavail)
	}

	procData, err := rpc.ReadData(data, call)
	if err != nil {
		logger.Debug("NSM: read procedure data error", "client", clientAddr, "error", err)
		return nil
	}

	hctx := &handlers.NSMHandlerContext{Context: ctx, ClientAddr: clientAddr}

	logger.Debug("NSM RPC", "procedure", proc.Name, "client", clientAddr)

	result, err := proc.Handler(hctx, s.config.Handler, procData)
	if err != nil {
		logger.Debug("NSM: handler error", "procedure", proc.Name, "client", clientAddr, "error", err)
		return makeErrorReplyBody(call.XID, rpc.RPCSystemErr)
	}

	return makeSuccessReplyBody(call.XID, result.Data)
}

// Stop gracefully shuts down the NSM server.
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

// Addr returns the TCP listener address (for tests and rpcbind registration).
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
