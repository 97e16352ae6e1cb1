package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// RunMessageStoreSuite checks the behaviour every core.MessageStore must
// share. newStore is called once per subtest.
func RunMessageStoreSuite(t *testing.T, newStore func(t *testing.T) core.MessageStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("post_and_list", func(t *testing.T) {
		s := newStore(t)
		u, err := s.PostMessage(ctx, "s1", core.PostMessageRequest{MessageType: "user", Content: "hello"})
		require.NoError(t, err)
		a, err := s.PostMessage(ctx, "s1", core.PostMessageRequest{
			MessageType: "assistant",
			Content:     "hi there",
			AgentType:   "primary",
			Metadata:    map[string]any{"analysis_notes": map[string]any{"a.log": "note"}},
		})
		require.NoError(t, err)
		require.NotEmpty(t, u.ID)
		require.NotEqual(t, u.ID, a.ID)

		msgs, err := s.ListMessages(ctx, "s1", 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, u.ID, msgs[0].ID)
		assert.Equal(t, "user", msgs[0].MessageType)
		assert.Equal(t, "hi there", msgs[1].Content)
		assert.Equal(t, "primary", msgs[1].AgentType)
		assert.Equal(t, "s1", msgs[1].SessionID)
		assert.Equal(t, map[string]any{"a.log": "note"}, msgs[1].Metadata["analysis_notes"])
		assert.False(t, msgs[1].CreatedAt.IsZero())

		other, err := s.ListMessages(ctx, "s2", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("paging", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			_, err := s.PostMessage(ctx, "s1", core.PostMessageRequest{MessageType: "user", Content: fmt.Sprintf("m%d", i)})
			require.NoError(t, err)
		}
		msgs, err := s.ListMessages(ctx, "s1", 2, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].Content)
		assert.Equal(t, "m2", msgs[1].Content)

		tail, err := s.ListMessages(ctx, "s1", 10, 4)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "m4", tail[0].Content)

		past, err := s.ListMessages(ctx, "s1", 10, 9)
		require.NoError(t, err)
		assert.Empty(t, past)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		resp, err := s.PostMessage(ctx, "s1", core.PostMessageRequest{
			MessageType: "assistant",
			Content:     "draft",
			Metadata:    map[string]any{"keep": "yes"},
		})
		require.NoError(t, err)

		content := "final"
		require.NoError(t, s.UpdateMessage(ctx, "s1", resp.ID, core.UpdateMessageRequest{
			Content:  &content,
			Metadata: map[string]any{"artifacts": []any{map[string]any{"id": "a1"}}},
		}))
		require.NoError(t, s.UpdateMessage(ctx, "s1", resp.ID, core.UpdateMessageRequest{}))

		msgs, err := s.ListMessages(ctx, "s1", 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "final", msgs[0].Content)
		assert.Equal(t, "yes", msgs[0].Metadata["keep"])
		assert.NotNil(t, msgs[0].Metadata["artifacts"])
	})

	t.Run("update_missing", func(t *testing.T) {
		s := newStore(t)
		content := "x"
		err := s.UpdateMessage(ctx, "s1", "missing", core.UpdateMessageRequest{Content: &content})
		require.Error(t, err)
	})

	t.Run("cancelled_context", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.PostMessage(cctx, "s1", core.PostMessageRequest{MessageType: "user", Content: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})
}
