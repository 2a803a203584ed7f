package compact

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parlor/pkg/models"
	"parlor/pkg/store"
)

func putConv(t *testing.T, st store.Store, c models.Conversation) {
	t.Helper()
	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, st.Put(store.ConvKey(c.ID), b))
}

func getConv(t *testing.T, st store.Store, id string) models.Conversation {
	t.Helper()
	b, err := st.Get(store.ConvKey(id))
	require.NoError(t, err)
	var c models.Conversation
	require.NoError(t, json.Unmarshal(b, &c))
	return c
}

func TestRunOnceClearsStaleTyping(t *testing.T) {
	st := store.NewMemory()
	now := time.UnixMilli(100_000)

	putConv(t, st, models.Conversation{
		ID:           "cnv_1",
		Participants: []string{"usr_a", "usr_b"},
		TypingIndicators: map[string]int64{
			"usr_a": 99_500,  // fresh
			"usr_b": 30_000,  // stale
		},
	})
	putConv(t, st, models.Conversation{
		ID:           "cnv_2",
		Participants: []string{"usr_a", "usr_c"},
	})

	cleared, err := RunOnce(st, time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, 1, cleared)

	c := getConv(t, st, "cnv_1")
	require.Contains(t, c.TypingIndicators, "usr_a")
	require.NotContains(t, c.TypingIndicators, "usr_b")
}

func TestRunOnceDropsEmptyMap(t *testing.T) {
	st := store.NewMemory()
	putConv(t, st, models.Conversation{
		ID:               "cnv_1",
		Participants:     []string{"usr_a"},
		TypingIndicators: map[string]int64{"usr_a": 1},
	})

	cleared, err := RunOnce(st, time.Minute, time.UnixMilli(10_000_000))
	require.NoError(t, err)
	require.Equal(t, 1, cleared)

	c := getConv(t, st, "cnv_1")
	require.Empty(t, c.TypingIndicators)
}

func TestRunOnceIgnoresMessageRows(t *testing.T) {
	st := store.NewMemory()
	putConv(t, st, models.Conversation{ID: "cnv_1", Participants: []string{"usr_a"}})
	// message rows share the conv: namespace but are not conversation docs
	require.NoError(t, st.Put(store.ConvMsgKey("cnv_1", 1000, 1), []byte(`{"id":"msg_1"}`)))

	cleared, err := RunOnce(st, time.Minute, time.UnixMilli(100_000))
	require.NoError(t, err)
	require.Zero(t, cleared)
}
