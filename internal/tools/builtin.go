package tools

import (
	"context"
	"time"

	"connectai/pkg/errors"
)

// SessionControl is the narrow surface a control tool gets over the session
// that invoked it. The orchestrator injects it through the dispatch context so
// process-wide tools stay free of per-session state.
type SessionControl interface {
	// RequestEnd asks the session to hang up after the current model turn
	// finishes playing out.
	RequestEnd(outcome, reason string)
}

type controlKey struct{}

// WithSessionControl attaches the session control surface to a dispatch
// context.
func WithSessionControl(ctx context.Context, ctrl SessionControl) context.Context {
	return context.WithValue(ctx, controlKey{}, ctrl)
}

func controlFrom(ctx context.Context) (SessionControl, bool) {
	ctrl, ok := ctx.Value(controlKey{}).(SessionControl)
	return ctrl, ok
}

// NewEndCallTool lets the model end the conversation with a recorded outcome.
func NewEndCallTool() Tool {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"outcome": map[string]interface{}{
				"type":        "string",
				"description": "How the conversation concluded",
				"enum":        []interface{}{"resolved", "escalated", "abandoned"},
			},
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "One sentence explaining the outcome",
			},
		},
		"required": []interface{}{"outcome"},
	}

	return New("end_call", "End the phone call once the caller's request is handled", params,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			ctrl, ok := controlFrom(ctx)
			if !ok {
				return nil, errors.Wrap(errors.ErrTool, "no session attached to invocation")
			}
			outcome, _ := args["outcome"].(string)
			if outcome == "" {
				outcome = "resolved"
			}
			reason, _ := args["reason"].(string)
			ctrl.RequestEnd(outcome, reason)
			return map[string]interface{}{"status": "ending"}, nil
		})
}

// NewCurrentTimeTool reports wall-clock time so the model can speak accurate
// dates without guessing.
func NewCurrentTimeTool() Tool {
	params := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}

	return New("current_time", "Get the current date and time", params,
		func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			now := time.Now()
			return map[string]interface{}{
				"iso":      now.Format(time.RFC3339),
				"weekday":  now.Weekday().String(),
				"timezone": now.Location().String(),
			}, nil
		})
}
