package tools

import (
	"context"
	"sync"
	"time"

	"connectai/internal/backend"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// Result is the outcome of one dispatched invocation. Every Dispatch call
// produces exactly one Result, including rejections and timeouts, so the
// model always receives an answer for each correlation id.
type Result struct {
	ID      string
	Name    string
	Output  map[string]interface{}
	Err     error
	Elapsed time.Duration
}

// Response renders the result as a tool response payload. Failed invocations
// collapse into a synthetic error payload instead of leaving the call
// unanswered.
func (r Result) Response() backend.ToolResult {
	out := r.Output
	if r.Err != nil {
		out = map[string]interface{}{
			"status": "error",
			"error":  r.Err.Error(),
		}
	}
	return backend.ToolResult{ID: r.ID, Name: r.Name, Output: out}
}

// Router executes tool invocations asynchronously on behalf of one session.
// Each invocation runs in its own goroutine under a per-invocation deadline;
// completions surface on Results in completion order, which may differ from
// submission order.
type Router struct {
	registry *Registry
	granted  map[string]struct{}
	timeout  time.Duration
	log      *logger.Logger

	results chan Result
	quit    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRouter builds a router scoped to one session. Only the granted names may
// be invoked; everything else is rejected without executing.
func NewRouter(registry *Registry, granted []string, timeout time.Duration) *Router {
	g := make(map[string]struct{}, len(granted))
	for _, name := range granted {
		g[name] = struct{}{}
	}
	return &Router{
		registry: registry,
		granted:  g,
		timeout:  timeout,
		log:      logger.Get().With("component", "tool_router"),
		results:  make(chan Result, 16),
		quit:     make(chan struct{}),
	}
}

// Results yields invocation outcomes. The channel closes after Close once all
// in-flight invocations have finished.
func (r *Router) Results() <-chan Result {
	return r.results
}

// Dispatch starts one invocation. It never blocks on the tool itself; the
// outcome, including allowlist rejections and unknown-tool failures, arrives
// on Results.
func (r *Router) Dispatch(ctx context.Context, call backend.ToolCall) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.deliver(r.run(ctx, call))
	}()
}

func (r *Router) run(ctx context.Context, call backend.ToolCall) Result {
	started := time.Now()
	res := Result{ID: call.ID, Name: call.Name}

	if _, ok := r.granted[call.Name]; !ok {
		res.Err = errors.Wrapf(errors.ErrToolNotGranted, "tool %q", call.Name)
		res.Elapsed = time.Since(started)
		return res
	}
	tool, ok := r.registry.Get(call.Name)
	if !ok {
		res.Err = errors.Wrapf(errors.ErrTool, "tool %q is not registered", call.Name)
		res.Elapsed = time.Since(started)
		return res
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		out map[string]interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := tool.Execute(execCtx, call.Args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		res.Output = o.out
		if o.err != nil {
			res.Err = errors.Wrapf(errors.ErrTool, "tool %q failed: %v", call.Name, o.err)
		}
	case <-execCtx.Done():
		// The handler goroutine is abandoned; its context is cancelled and a
		// well-behaved tool returns shortly after.
		res.Err = errors.Wrapf(errors.ErrToolDeadline, "tool %q exceeded %s", call.Name, r.timeout)
	}

	res.Elapsed = time.Since(started)
	if res.Err != nil {
		r.log.Warnf("Tool invocation failed: id=%s name=%s err=%v", call.ID, call.Name, res.Err)
	} else {
		r.log.Debugf("Tool invocation completed: id=%s name=%s elapsed=%s", call.ID, call.Name, res.Elapsed)
	}
	return res
}

func (r *Router) deliver(res Result) {
	select {
	case r.results <- res:
	case <-r.quit:
		// Session shut down before the result could be consumed.
	}
}

// Close waits for in-flight invocations and closes Results. Dispatch calls
// after Close are ignored.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.quit)
	r.wg.Wait()
	close(r.results)
}
