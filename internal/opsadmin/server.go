// Package opsadmin — server.go
//
// Unix domain socket server for monitor-server operator control.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/monitor/admin.sock (configurable).
// Permissions: 0600, owned by the server process's user.
//
// Commands (JSON request → JSON response):
//
//   {"cmd":"queue_status"}
//     → Returns depth, capacity, concurrency, paused state and dead letter
//       count for every registered queue.
//     → Response: {"ok":true,"queues":[{"name":"error-processing","depth":3,...}]}
//
//   {"cmd":"list_dead_letters","queue":"error-processing"}
//     → Returns every dead-lettered job currently held for that queue.
//     → Response: {"ok":true,"dead_letters":[{"id":"...","error":"...",...}]}
//
//   {"cmd":"requeue_dead_letter","queue":"error-processing","id":"..."}
//     → Re-submits the dead-lettered job to its originating queue.
//     → Response: {"ok":true}
//
//   {"cmd":"pause_queue","queue":"error-processing"}
//     → Stops workers from consuming new jobs on that queue.
//     → Response: {"ok":true}
//
//   {"cmd":"resume_queue","queue":"error-processing"}
//     → Undoes pause_queue.
//     → Response: {"ok":true}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes (prevents memory exhaustion).
//   - Connection timeout: 10s read, 10s write.

package opsadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/queue"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// QueueAdmin is the interface a single pipeline stage's queue exposes to
// the admin server. *queue.DeadLetterStore[T] implements this for any T.
type QueueAdmin interface {
	Name() string
	Depth() int
	Capacity() int
	Concurrency() int
	Paused() bool
	Pause()
	Resume()
	DeadLetterCount() int
	List() []queue.DeadLetterEntry
	Requeue(id string) error
}

// QueueStatus is a JSON-serializable snapshot of one queue.
type QueueStatus struct {
	Name            string `json:"name"`
	Depth           int    `json:"depth"`
	Capacity        int    `json:"capacity"`
	Concurrency     int    `json:"concurrency"`
	Paused          bool   `json:"paused"`
	DeadLetterCount int    `json:"dead_letter_count"`
}

// Request is the JSON structure for admin commands.
type Request struct {
	Cmd   string `json:"cmd"`
	Queue string `json:"queue,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Response is the JSON structure for admin command responses.
type Response struct {
	OK          bool                    `json:"ok"`
	Error       string                  `json:"error,omitempty"`
	Queues      []QueueStatus           `json:"queues,omitempty"`
	DeadLetters []queue.DeadLetterEntry `json:"dead_letters,omitempty"`
}

// Server is the opsadmin Unix domain socket server.
type Server struct {
	socketPath string
	queues     map[string]QueueAdmin
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an opsadmin Server. queues maps a pool's configured
// Name (e.g. "error-aggregation") to its QueueAdmin handle.
func NewServer(socketPath string, queues map[string]QueueAdmin, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		queues:     queues,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the admin socket server. Removes any stale socket
// file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("opsadmin: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("opsadmin: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("opsadmin: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("opsadmin: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("opsadmin socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("opsadmin: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("opsadmin: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("opsadmin: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "queue_status":
		return s.cmdQueueStatus()
	case "list_dead_letters":
		return s.cmdListDeadLetters(req)
	case "requeue_dead_letter":
		return s.cmdRequeueDeadLetter(req)
	case "pause_queue":
		return s.cmdPauseQueue(req)
	case "resume_queue":
		return s.cmdResumeQueue(req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) lookup(name string) (QueueAdmin, error) {
	q, ok := s.queues[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", name)
	}
	return q, nil
}

func (s *Server) cmdQueueStatus() Response {
	out := make([]QueueStatus, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, QueueStatus{
			Name:            q.Name(),
			Depth:           q.Depth(),
			Capacity:        q.Capacity(),
			Concurrency:     q.Concurrency(),
			Paused:          q.Paused(),
			DeadLetterCount: q.DeadLetterCount(),
		})
	}
	return Response{OK: true, Queues: out}
}

func (s *Server) cmdListDeadLetters(req Request) Response {
	q, err := s.lookup(req.Queue)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, DeadLetters: q.List()}
}

func (s *Server) cmdRequeueDeadLetter(req Request) Response {
	q, err := s.lookup(req.Queue)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	if req.ID == "" {
		return Response{OK: false, Error: "id required for requeue_dead_letter"}
	}
	if err := q.Requeue(req.ID); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.log.Info("opsadmin: dead letter requeued", zap.String("queue", req.Queue), zap.String("id", req.ID))
	return Response{OK: true}
}

func (s *Server) cmdPauseQueue(req Request) Response {
	q, err := s.lookup(req.Queue)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	q.Pause()
	s.log.Info("opsadmin: queue paused", zap.String("queue", req.Queue))
	return Response{OK: true}
}

func (s *Server) cmdResumeQueue(req Request) Response {
	q, err := s.lookup(req.Queue)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	q.Resume()
	s.log.Info("opsadmin: queue resumed", zap.String("queue", req.Queue))
	return Response{OK: true}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
