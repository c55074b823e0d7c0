package grpcapi

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
)

// #region harness

type fakeRunner struct {
	mu   sync.Mutex
	res  gate.Result
	err  error
	got  stage.Request
	runs int
}

func (f *fakeRunner) Run(_ context.Context, req stage.Request) (gate.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.got = req
	return f.res, f.err
}

func (f *fakeRunner) last() (stage.Request, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got, f.runs
}

// startServer serves runner over an in-memory listener and returns a
// connected client. Everything is torn down by t.Cleanup.
func startServer(t *testing.T, runner Runner) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return client
}

// #endregion harness

// #region tests

func TestRunGate_RoundTrip(t *testing.T) {
	runner := &fakeRunner{res: gate.Result{
		CanAdvance:      true,
		Outcome:         gate.OutcomeAdvance,
		ExtractedFields: map[string]string{"setting": "a dark forest", "conflict": "unknown"},
		ConversationID:  "conv-9",
		AuditID:         "audit-9",
	}}
	client := startServer(t, runner)

	req := stage.Request{
		Stage:     "Plot_Brainstorm",
		LearnerID: "kid-3",
		History: []stage.Turn{
			{Role: stage.RoleStudent, Content: "My story has a brave fox."},
			{Role: stage.RoleAssistant, Content: "Where does the fox live?"},
		},
		Context:        map[string]string{stage.CtxBookTitle: "Fox Tales"},
		SectionIndex:   1,
		ConversationID: "conv-8",
	}
	res, err := client.RunGate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.CanAdvance)
	assert.Equal(t, gate.OutcomeAdvance, res.Outcome)
	assert.Equal(t, "a dark forest", res.ExtractedFields["setting"])
	assert.Equal(t, "conv-9", res.ConversationID)
	assert.Equal(t, "audit-9", res.AuditID)

	got, runs := runner.last()
	assert.Equal(t, 1, runs)
	assert.Equal(t, stage.PlotBrainstorm, got.Stage)
	assert.Equal(t, "kid-3", got.LearnerID)
	assert.Equal(t, 1, got.SectionIndex)
	assert.Equal(t, req.History, got.History)
	assert.Equal(t, "Fox Tales", got.Context[stage.CtxBookTitle])
	assert.Equal(t, "conv-8", got.ConversationID)
}

func TestRunGate_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"timeout", &evaluator.Error{Kind: evaluator.KindTimeout, Detail: "no reply"}, codes.DeadlineExceeded},
		{"unavailable", &evaluator.Error{Kind: evaluator.KindUnavailable, Detail: "status 500"}, codes.Unavailable},
		{"invalid", gate.ErrInvalidRequest, codes.InvalidArgument},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startServer(t, &fakeRunner{err: tt.err})
			_, err := client.RunGate(context.Background(), stage.Request{
				Stage:       stage.BookReview,
				CurrentText: "I loved the part with the giant peach.",
			})
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestRunGate_TimeoutKeepsKindInMessage(t *testing.T) {
	client := startServer(t, &fakeRunner{err: &evaluator.Error{Kind: evaluator.KindTimeout, Detail: "no reply within 20s"}})
	_, err := client.RunGate(context.Background(), stage.Request{Stage: stage.FreeWriting, CurrentText: "Once upon a time."})
	require.Error(t, err)
	assert.Contains(t, status.Convert(err).Message(), "evaluator_timeout")
}

func TestRunGate_UnknownStage(t *testing.T) {
	runner := &fakeRunner{}
	client := startServer(t, runner)
	_, err := client.RunGate(context.Background(), stage.Request{Stage: "poetry", CurrentText: "roses are red"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, runs := runner.last()
	assert.Zero(t, runs)
}

func TestHealth(t *testing.T) {
	client := startServer(t, &fakeRunner{})
	hc := grpc_health_v1.NewHealthClient(client.conn)
	for _, svc := range []string{"", ServiceName} {
		resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status, "service %q", svc)
	}
}

// #endregion tests
