package agentpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

func onlineAgent(id string, capacity int) model.Agent {
	return model.Agent{ID: id, Name: id, Status: model.AgentOnline, Capacity: capacity}
}

func TestRegisterValidation(t *testing.T) {
	p := New(logger.NewNop())

	assert.ErrorIs(t, p.Register(model.Agent{ID: "a", Status: "sleeping", Capacity: 1}), ErrInvalidAgentStatus)
	assert.Error(t, p.Register(model.Agent{ID: "a", Status: model.AgentOnline, Capacity: 0}))
	assert.NoError(t, p.Register(onlineAgent("a", 1)))
}

func TestReserveNeverExceedsCapacity(t *testing.T) {
	p := New(logger.NewNop())
	require.NoError(t, p.Register(onlineAgent("a", 3)))

	var wg sync.WaitGroup
	reserved := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Reserve("a") == nil {
				reserved <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(reserved)

	n := 0
	for range reserved {
		n++
	}
	assert.Equal(t, 3, n)

	agent, err := p.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 3, agent.ActiveConversationCount)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	p := New(logger.NewNop())
	require.NoError(t, p.Register(onlineAgent("a", 2)))

	p.Release("a")
	agent, err := p.Get("a")
	require.NoError(t, err)
	assert.Zero(t, agent.ActiveConversationCount)
}

func TestCandidatesExcludeBusyAndFull(t *testing.T) {
	p := New(logger.NewNop())
	require.NoError(t, p.Register(onlineAgent("free", 2)))
	require.NoError(t, p.Register(onlineAgent("full", 1)))
	require.NoError(t, p.Register(model.Agent{ID: "away", Status: model.AgentAway, Capacity: 5}))

	require.NoError(t, p.Reserve("full"))

	candidates := p.Candidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "free", candidates[0].ID)
}

func TestStatusChangeWakesNotify(t *testing.T) {
	p := New(logger.NewNop())
	require.NoError(t, p.Register(model.Agent{ID: "a", Status: model.AgentOffline, Capacity: 1}))

	// Drain any wake from registration.
	select {
	case <-p.Notify():
	default:
	}

	_, err := p.SetStatus("a", model.AgentOnline)
	require.NoError(t, err)

	select {
	case <-p.Notify():
	default:
		t.Fatal("expected a wake signal after agent came online")
	}
}

func TestSetStatusUnknownAgent(t *testing.T) {
	p := New(logger.NewNop())
	_, err := p.SetStatus("ghost", model.AgentOnline)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
