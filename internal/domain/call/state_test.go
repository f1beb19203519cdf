package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/pkg/errors"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"created to connecting", StateCreated, StateConnecting, false},
		{"connecting to active", StateConnecting, StateActive, false},
		{"connecting to draining", StateConnecting, StateDraining, false},
		{"active to draining", StateActive, StateDraining, false},
		{"draining to closed", StateDraining, StateClosed, false},
		{"created to errored", StateCreated, StateErrored, false},
		{"active to errored", StateActive, StateErrored, false},
		{"draining to errored", StateDraining, StateErrored, false},
		{"created to active skips connecting", StateCreated, StateActive, true},
		{"active to closed skips draining", StateActive, StateClosed, true},
		{"closed is terminal", StateClosed, StateActive, true},
		{"errored is terminal", StateErrored, StateDraining, true},
		{"closed to errored rejected", StateClosed, StateErrored, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateClosed.Terminal())
	assert.True(t, StateErrored.Terminal())
	assert.False(t, StateCreated.Terminal())
	assert.False(t, StateConnecting.Terminal())
	assert.False(t, StateActive.Terminal())
	assert.False(t, StateDraining.Terminal())
}

func TestRouteMatches(t *testing.T) {
	route := Route{
		DomainPattern: "acme.example.com",
		DialedPattern: "1800*",
		CallerPattern: "*",
	}

	assert.True(t, route.Matches(RouteHeaders{
		AccountDomain: "acme.example.com",
		Dialed:        "18005551234",
		CallerID:      "14155550100",
	}))
	assert.False(t, route.Matches(RouteHeaders{
		AccountDomain: "other.example.com",
		Dialed:        "18005551234",
	}))
	assert.False(t, route.Matches(RouteHeaders{
		AccountDomain: "acme.example.com",
		Dialed:        "14155550100",
	}))

	// Empty patterns match anything.
	assert.True(t, Route{}.Matches(RouteHeaders{AccountDomain: "x", Dialed: "y", CallerID: "z"}))
}

func TestAgentAllowedTools(t *testing.T) {
	agent := &Agent{Tools: []byte(`["lookup_order","transfer_call"]`)}

	assert.True(t, agent.ToolAllowed("lookup_order"))
	assert.True(t, agent.ToolAllowed("transfer_call"))
	assert.False(t, agent.ToolAllowed("place_order"))

	var nilAgent *Agent
	assert.False(t, nilAgent.ToolAllowed("lookup_order"))

	malformed := &Agent{Tools: []byte(`{"not":"a list"}`)}
	assert.Empty(t, malformed.AllowedTools())
}
