package protocol

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/buildgovernor/governor/app/core/pool"
	"github.com/buildgovernor/governor/app/panichandler"
)

// Server accepts shim connections on the governor's IPC endpoint and
// dispatches acquire/release/status/heartbeat requests to a Pool: a
// mutex-guarded Start/Stop lifecycle whose accept loop runs through
// panichandler.SafeGo.
type Server struct {
	endpoint string
	pool     pool.Pool

	mu       sync.Mutex
	running  bool
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server that will listen on endpoint (a Unix socket path on
// POSIX, a named pipe name on Windows) and serve the given Pool.
func New(endpoint string, p pool.Pool) *Server {
	return &Server{endpoint: endpoint, pool: p}
}

// Start begins listening and accepting connections in the background. It
// returns once the listener is bound, or an error if binding failed.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("protocol: server already running")
	}

	lis, err := listen(s.endpoint)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = lis
	s.running = true
	s.mu.Unlock()

	slog.Info("governor listening", "endpoint", s.endpoint)

	s.wg.Add(1)
	panichandler.SafeGo("protocol-accept-loop", func() {
		defer s.wg.Done()
		s.acceptLoop()
	})
	return nil
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	lis := s.listener
	s.mu.Unlock()

	if lis != nil {
		_ = lis.Close()
	}
	s.wg.Wait()
	slog.Info("governor stopped listening", "endpoint", s.endpoint)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := !s.running
			s.mu.Unlock()
			if stopped {
				return
			}
			slog.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		panichandler.SafeGo("protocol-connection", func() {
			defer s.wg.Done()
			s.serveConn(conn)
		})
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	codec := NewCodec(conn)

	for {
		env, err := codec.ReadEnvelope()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				if writeErr := codec.WriteError(err.Error()); writeErr != nil {
					return
				}
				continue
			}
			return
		}

		if err := s.dispatch(codec, env); err != nil {
			slog.Debug("dispatch failed", "type", env.Type, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(codec *Codec, env Envelope) error {
	switch env.Type {
	case TypeAcquire:
		return s.handleAcquire(codec, env)
	case TypeRelease:
		return s.handleRelease(codec, env)
	case TypeStatus:
		return s.handleStatus(codec)
	case TypeHeartbeat:
		return s.handleHeartbeat(codec, env)
	default:
		return codec.WriteError("unrecognized message type: " + env.Type)
	}
}

func (s *Server) handleAcquire(codec *Codec, env Envelope) error {
	var req AcquireRequest
	if err := Decode(env, &req); err != nil {
		return codec.WriteError(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.TimeoutMs)*time.Millisecond)
	defer cancel()

	outcome := s.pool.TryAcquire(ctx, req.Tool, req.RequestedTokens, time.Duration(req.TimeoutMs)*time.Millisecond)
	return codec.Write(TypeAcquireResponse, AcquireResponse{
		Granted:                outcome.Granted,
		LeaseID:                outcome.LeaseID,
		GrantedTokens:          outcome.GrantedTokens,
		RecommendedParallelism: outcome.RecommendedParallelism,
		Reason:                 outcome.Reason,
		CommitRatio:            outcome.CommitRatio,
	})
}

func (s *Server) handleRelease(codec *Codec, env Envelope) error {
	var req ReleaseRequest
	if err := Decode(env, &req); err != nil {
		return codec.WriteError(err.Error())
	}

	outcome := s.pool.Release(
		req.LeaseID,
		req.PeakWorkingSetBytes,
		req.PeakCommitBytes,
		req.ExitCode,
		time.Duration(req.DurationMs)*time.Millisecond,
		req.StderrHadDiagnostics,
	)
	return codec.Write(TypeReleaseResponse, ReleaseResponse{
		Acknowledged:    outcome.Acknowledged,
		Classification:  string(outcome.Classification),
		Message:         outcome.Message,
		ShouldRetry:     outcome.ShouldRetry,
		RetryWithTokens: outcome.RetryWithTokens,
	})
}

func (s *Server) handleStatus(codec *Codec) error {
	status := s.pool.Status()

	leases := make([]StatusLease, 0, len(status.RecentLeases))
	for _, l := range status.RecentLeases {
		leases = append(leases, StatusLease{
			LeaseID:          l.LeaseID,
			Tool:             l.Tool,
			Tokens:           l.Tokens,
			DurationSeconds:  l.DurationSeconds,
			ExpiresInSeconds: l.ExpiresInSeconds,
		})
	}

	return codec.Write(TypeStatusResponse, StatusResponse{
		TotalTokens:            status.TotalTokens,
		AvailableTokens:        status.AvailableTokens,
		ActiveLeases:           status.ActiveLeases,
		ExpiredLeaseCount:      status.ExpiredLeaseCount,
		CommitRatio:            status.Snapshot.CommitRatio(),
		CommitChargeBytes:      status.Snapshot.CommitCharge,
		CommitLimitBytes:       status.Snapshot.CommitLimit,
		AvailableMemoryBytes:   status.Snapshot.AvailablePhysical,
		ThrottleLevel:          status.ThrottleLevel.String(),
		RecommendedParallelism: status.RecommendedParallelism,
		RecentLeases:           leases,
	})
}

func (s *Server) handleHeartbeat(codec *Codec, env Envelope) error {
	var req HeartbeatRequest
	if err := Decode(env, &req); err != nil {
		return codec.WriteError(err.Error())
	}
	alive := s.pool.Heartbeat(req.LeaseID)
	return codec.Write(TypeHeartbeatResp, HeartbeatResponse{
		Alive:     alive,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
