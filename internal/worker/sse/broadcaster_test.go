package sse

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyOwnUser(t *testing.T) {
	b := NewBroadcaster()

	recA := httptest.NewRecorder()
	clientA, err := b.AddClient(recA, "user-a")
	require.NoError(t, err)

	recB := httptest.NewRecorder()
	clientB, err := b.AddClient(recB, "user-b")
	require.NoError(t, err)

	assert.Equal(t, 2, b.ClientCount())

	b.Publish(EventPromptCreated, "user-a", map[string]string{"id": "p1"})

	assert.Contains(t, recA.Body.String(), "prompt.created")
	assert.Contains(t, recA.Body.String(), `"p1"`)
	assert.Empty(t, recB.Body.String())

	b.RemoveClient(clientA)
	b.RemoveClient(clientB)
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishFormatsSSEFrames(t *testing.T) {
	b := NewBroadcaster()

	rec := httptest.NewRecorder()
	client, err := b.AddClient(rec, "user-a")
	require.NoError(t, err)
	defer b.RemoveClient(client)

	b.Publish(EventPromptQueued, "user-a", nil)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}
