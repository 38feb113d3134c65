package opsadmin

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/queue"
)

type fakeQueue struct {
	name    string
	depth   int
	paused  bool
	letters []queue.DeadLetterEntry
}

func (f *fakeQueue) Name() string        { return f.name }
func (f *fakeQueue) Depth() int          { return f.depth }
func (f *fakeQueue) Capacity() int       { return 1024 }
func (f *fakeQueue) Concurrency() int    { return 4 }
func (f *fakeQueue) Paused() bool        { return f.paused }
func (f *fakeQueue) Pause()              { f.paused = true }
func (f *fakeQueue) Resume()             { f.paused = false }
func (f *fakeQueue) DeadLetterCount() int { return len(f.letters) }
func (f *fakeQueue) List() []queue.DeadLetterEntry { return f.letters }
func (f *fakeQueue) Requeue(id string) error {
	for i, e := range f.letters {
		if e.ID == id {
			f.letters = append(f.letters[:i], f.letters[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "dead letter not found" }

func startTestServer(t *testing.T, queues map[string]QueueAdmin) (string, func()) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "admin.sock")
	srv := NewServer(sock, queues, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return sock, func() { cancel() }
}

func sendRequest(t *testing.T, sock string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(req)
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestServer_QueueStatus(t *testing.T) {
	q := &fakeQueue{name: "error-processing", depth: 7}
	sock, stop := startTestServer(t, map[string]QueueAdmin{"error-processing": q})
	defer stop()

	resp := sendRequest(t, sock, Request{Cmd: "queue_status"})
	if !resp.OK || len(resp.Queues) != 1 || resp.Queues[0].Depth != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServer_PauseAndResumeQueue(t *testing.T) {
	q := &fakeQueue{name: "ai-diagnosis"}
	sock, stop := startTestServer(t, map[string]QueueAdmin{"ai-diagnosis": q})
	defer stop()

	resp := sendRequest(t, sock, Request{Cmd: "pause_queue", Queue: "ai-diagnosis"})
	if !resp.OK || !q.paused {
		t.Fatalf("expected queue paused, resp=%+v", resp)
	}

	resp = sendRequest(t, sock, Request{Cmd: "resume_queue", Queue: "ai-diagnosis"})
	if !resp.OK || q.paused {
		t.Fatalf("expected queue resumed, resp=%+v", resp)
	}
}

func TestServer_RequeueDeadLetter(t *testing.T) {
	q := &fakeQueue{name: "email-notification", letters: []queue.DeadLetterEntry{{ID: "dl-1", Queue: "email-notification"}}}
	sock, stop := startTestServer(t, map[string]QueueAdmin{"email-notification": q})
	defer stop()

	resp := sendRequest(t, sock, Request{Cmd: "requeue_dead_letter", Queue: "email-notification", ID: "dl-1"})
	if !resp.OK {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(q.letters) != 0 {
		t.Fatalf("expected dead letter consumed, got %d remaining", len(q.letters))
	}

	resp = sendRequest(t, sock, Request{Cmd: "requeue_dead_letter", Queue: "email-notification", ID: "missing"})
	if resp.OK {
		t.Fatalf("expected failure for unknown id")
	}
}

func TestServer_UnknownQueue(t *testing.T) {
	sock, stop := startTestServer(t, map[string]QueueAdmin{})
	defer stop()

	resp := sendRequest(t, sock, Request{Cmd: "pause_queue", Queue: "nope"})
	if resp.OK {
		t.Fatalf("expected failure for unknown queue")
	}
}
