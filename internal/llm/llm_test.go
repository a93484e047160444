package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritagewhisper/keeper/internal/routing"
)

func TestMockClientResponses(t *testing.T) {
	mock := NewMockClient("fallback")
	mock.Responses = []string{"first", "second"}

	ctx := context.Background()
	req := &Request{
		Messages: []Message{UserMessage("hello")},
		Model:    routing.CheapModel,
	}

	res, err := mock.Chat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "first", res.Content)

	res, err = mock.Chat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Content)

	res, err = mock.Chat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Content)

	assert.Equal(t, 3, mock.RequestCount())
	assert.Len(t, mock.Requests(), 3)
}

func TestMockClientFailure(t *testing.T) {
	mock := NewMockClient("ok")
	mock.FailAfter = 1

	ctx := context.Background()
	req := &Request{Messages: []Message{UserMessage("hi")}}

	_, err := mock.Chat(ctx, req)
	require.NoError(t, err)

	_, err = mock.Chat(ctx, req)
	assert.Error(t, err)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	count, err := tc.Count("What was it like at Grandma's house in 1962?")
	require.NoError(t, err)
	assert.Greater(t, count, 5)

	// Under the cap: unchanged.
	text := "a short sentence"
	out, err := tc.Truncate(text, 100)
	require.NoError(t, err)
	assert.Equal(t, text, out)

	// Over the cap: truncated to the budget.
	long := ""
	for i := 0; i < 200; i++ {
		long += "memory "
	}
	out, err = tc.Truncate(long, 50)
	require.NoError(t, err)
	capped, err := tc.Count(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, capped, 50)
	assert.Less(t, len(out), len(long))
}
