package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/internal/backend"
	"connectai/pkg/errors"
)

func collectResults(t *testing.T, router *Router, n int) map[string]Result {
	t.Helper()
	out := make(map[string]Result, n)
	for i := 0; i < n; i++ {
		select {
		case res := <-router.Results():
			out[res.ID] = res
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d of %d", i+1, n)
		}
	}
	return out
}

func TestRouterDispatchSuccess(t *testing.T) {
	registry := NewRegistry()
	registry.Register(New("lookup_order", "Look up an order", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"status": "shipped", "order": args["order_id"]}, nil
		}))

	router := NewRouter(registry, []string{"lookup_order"}, time.Second)
	defer router.Close()

	router.Dispatch(context.Background(), backend.ToolCall{
		ID:   "call-1",
		Name: "lookup_order",
		Args: map[string]interface{}{"order_id": "A-100"},
	})

	res := collectResults(t, router, 1)["call-1"]
	require.NoError(t, res.Err)
	assert.Equal(t, "shipped", res.Output["status"])

	resp := res.Response()
	assert.Equal(t, "call-1", resp.ID)
	assert.Equal(t, "shipped", resp.Output["status"])
}

func TestRouterRejectsUngrantedTool(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewCurrentTimeTool())

	router := NewRouter(registry, nil, time.Second)
	defer router.Close()

	router.Dispatch(context.Background(), backend.ToolCall{ID: "call-1", Name: "current_time"})

	res := collectResults(t, router, 1)["call-1"]
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.ErrToolNotGranted))

	// The model still gets an answer for the correlation id.
	resp := res.Response()
	assert.Equal(t, "error", resp.Output["status"])
	assert.Contains(t, resp.Output["error"], "capability not granted")
}

func TestRouterUnknownTool(t *testing.T) {
	router := NewRouter(NewRegistry(), []string{"ghost"}, time.Second)
	defer router.Close()

	router.Dispatch(context.Background(), backend.ToolCall{ID: "call-1", Name: "ghost"})

	res := collectResults(t, router, 1)["call-1"]
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.ErrTool))
}

func TestRouterDeadlineProducesSyntheticFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(New("slow", "Never finishes in time", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	router := NewRouter(registry, []string{"slow"}, 20*time.Millisecond)
	defer router.Close()

	started := time.Now()
	router.Dispatch(context.Background(), backend.ToolCall{ID: "call-1", Name: "slow"})

	res := collectResults(t, router, 1)["call-1"]
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.ErrToolDeadline))
	assert.Less(t, time.Since(started), time.Second, "deadline must cut the invocation short")
}

func TestRouterCompletionsOutOfOrder(t *testing.T) {
	release := make(chan struct{})
	registry := NewRegistry()
	registry.Register(New("slow", "Waits for release", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			<-release
			return map[string]interface{}{"who": "slow"}, nil
		}))
	registry.Register(New("fast", "Returns immediately", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"who": "fast"}, nil
		}))

	router := NewRouter(registry, []string{"slow", "fast"}, time.Second)
	defer router.Close()

	router.Dispatch(context.Background(), backend.ToolCall{ID: "first", Name: "slow"})
	router.Dispatch(context.Background(), backend.ToolCall{ID: "second", Name: "fast"})

	var fast Result
	select {
	case fast = <-router.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fast result")
	}
	assert.Equal(t, "second", fast.ID, "fast invocation completes while slow is still running")

	close(release)
	results := collectResults(t, router, 1)
	require.Contains(t, results, "first")
	require.NoError(t, results["first"].Err)
}

func TestRouterCloseWaitsForInflight(t *testing.T) {
	registry := NewRegistry()
	registry.Register(New("brief", "Short sleep", nil,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]interface{}{"ok": true}, nil
		}))

	router := NewRouter(registry, []string{"brief"}, time.Second)
	router.Dispatch(context.Background(), backend.ToolCall{ID: "call-1", Name: "brief"})

	done := make(chan struct{})
	go func() {
		router.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// Dispatch after Close is a no-op, not a panic.
	router.Dispatch(context.Background(), backend.ToolCall{ID: "late", Name: "brief"})
}

func TestEndCallToolRequiresSession(t *testing.T) {
	tool := NewEndCallTool()

	_, err := tool.Execute(context.Background(), map[string]interface{}{"outcome": "resolved"})
	require.Error(t, err)

	ctrl := &recordingControl{}
	ctx := WithSessionControl(context.Background(), ctrl)
	out, err := tool.Execute(ctx, map[string]interface{}{"outcome": "escalated", "reason": "needs a human"})
	require.NoError(t, err)
	assert.Equal(t, "ending", out["status"])
	assert.Equal(t, "escalated", ctrl.outcome)
	assert.Equal(t, "needs a human", ctrl.reason)
}

type recordingControl struct {
	outcome string
	reason  string
}

func (r *recordingControl) RequestEnd(outcome, reason string) {
	r.outcome = outcome
	r.reason = reason
}
