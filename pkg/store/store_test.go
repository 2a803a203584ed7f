package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryInsertConflict(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Insert("k", []byte("a")))
	err := st.Insert("k", []byte("b"))
	require.ErrorIs(t, err, ErrConflict)

	v, err := st.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)
}

func TestMemoryUpdateMissing(t *testing.T) {
	st := NewMemory()
	err := st.Update("missing", func(cur []byte) ([]byte, error) { return cur, nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateMutateErrorLeavesValue(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Put("k", []byte("orig")))
	boom := errors.New("boom")
	err := st.Update("k", func(cur []byte) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	v, err := st.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("orig"), v)
}

func TestMemoryScanOrder(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Put("p:3", []byte("c")))
	require.NoError(t, st.Put("p:1", []byte("a")))
	require.NoError(t, st.Put("q:1", []byte("x")))
	require.NoError(t, st.Put("p:2", []byte("b")))

	var got []string
	require.NoError(t, st.Scan("p:", func(k string, v []byte) error {
		got = append(got, k+"="+string(v))
		return nil
	}))
	require.Equal(t, []string{"p:1=a", "p:2=b", "p:3=c"}, got)
}

func TestPebbleRoundTrip(t *testing.T) {
	st, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Put("a", []byte("1")))
	require.NoError(t, st.Insert("b", []byte("2")))
	require.ErrorIs(t, st.Insert("b", []byte("3")), ErrConflict)

	require.NoError(t, st.Update("a", func(cur []byte) ([]byte, error) {
		return append(cur, '!'), nil
	}))
	v, err := st.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("1!"), v)

	require.NoError(t, st.Delete("b"))
	_, err = st.Get("b")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleScanStopsAtPrefix(t *testing.T) {
	st, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Put(fmt.Sprintf("a:%d", i), []byte{byte(i)}))
	}
	require.NoError(t, st.Put("b:0", []byte("other")))

	count := 0
	require.NoError(t, st.Scan("a:", func(k string, _ []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 5, count)
}

func TestMessageKeyOrdering(t *testing.T) {
	// ascending (ts, seq) must produce ascending key order
	k1 := ConvMsgKey("c", 1000, 1)
	k2 := ConvMsgKey("c", 1000, 2)
	k3 := ConvMsgKey("c", 1001, 1)
	require.Less(t, k1, k2)
	require.Less(t, k2, k3)
}
