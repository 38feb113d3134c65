package diagnosis

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type fakeDiagnosisServer struct {
	result Result
}

func startFakeServer(t *testing.T, result Result) (addr string, stop func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fake := &fakeDiagnosisServer{result: result}
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "monitor.diagnosis.v1.DiagnosisService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Diagnose",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var req Request
					if err := dec(&req); err != nil {
						return nil, err
					}
					return &fake.result, nil
				},
			},
		},
		Streams: []grpc.StreamDesc{},
	}, nil)

	go srv.Serve(lis)
	return lis.Addr().String(), srv.Stop
}

func TestClient_DiagnoseRoundTrip(t *testing.T) {
	addr, stop := startFakeServer(t, Result{Summary: "likely a nil pointer dereference", Confidence: 0.7})
	defer stop()

	client, err := Dial(addr, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	result, err := client.Diagnose(context.Background(), Request{ProjectID: "p1", ErrorHash: "h1", Message: "boom"})
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if result.Summary != "likely a nil pointer dereference" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
}

func TestClient_HandlerSwallowsErrors(t *testing.T) {
	client, err := Dial("127.0.0.1:1", time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	h := client.Handler(func(ctx context.Context, req Request, result *Result) error { return nil })
	if err := h(context.Background(), Request{ProjectID: "p1"}); err != nil {
		t.Fatalf("expected handler to swallow the dial/call error, got %v", err)
	}
}
