package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sui-sentry/auditengine/pkg/llm"
)

func TestNew_SeedsSystemPromptWhenNonEmpty(t *testing.T) {
	c := New("you are an analyst")
	require.Equal(t, 1, c.Len())
	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, llm.RoleSystem, snap[0].Role)
	assert.Equal(t, "you are an analyst", snap[0].Content)
}

func TestNew_EmptySystemPromptStartsEmpty(t *testing.T) {
	c := New("")
	assert.Equal(t, 0, c.Len())
}

func TestAppend_GrowsHistoryUnderLock(t *testing.T) {
	c := New("sys")
	c.Append(llm.Message{Role: llm.RoleUser, Content: "turn 1"})
	c.Append(llm.Message{Role: llm.RoleAssistant, Content: "reply 1"})

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "turn 1", snap[1].Content)
	assert.Equal(t, "reply 1", snap[2].Content)
}

func TestSnapshot_ReturnsIndependentCopy(t *testing.T) {
	c := New("sys")
	c.Append(llm.Message{Role: llm.RoleUser, Content: "first"})

	snap := c.Snapshot()
	snap[0].Content = "mutated"

	assert.Equal(t, "sys", c.Snapshot()[0].Content)
}

func TestAppend_ConcurrentCallsDoNotRace(t *testing.T) {
	c := New("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(llm.Message{Role: llm.RoleUser, Content: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func TestStatelessView_BuildsFreshListWithoutTouchingConversation(t *testing.T) {
	c := New("sys")
	c.Append(llm.Message{Role: llm.RoleUser, Content: "parent turn"})

	view := StatelessView("sub-agent system prompt", llm.Message{Role: llm.RoleUser, Content: "isolated turn"})

	require.Len(t, view, 2)
	assert.Equal(t, "sub-agent system prompt", view[0].Content)
	assert.Equal(t, "isolated turn", view[1].Content)
	assert.Equal(t, 2, c.Len(), "parent conversation must be untouched by a stateless call")
}

func TestStatelessView_NoSystemPromptOmitsSystemMessage(t *testing.T) {
	view := StatelessView("", llm.Message{Role: llm.RoleUser, Content: "turn"})
	require.Len(t, view, 1)
	assert.Equal(t, llm.RoleUser, view[0].Role)
}
