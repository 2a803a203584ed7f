package blob

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"parlor/pkg/faults"
)

func TestSaveAndGet(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	require.NoError(t, err)

	ref, err := s.Save(strings.NewReader("avatar-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "blb_"))

	rc, size, err := s.Get(ref)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, int64(len("avatar-bytes")), size)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "avatar-bytes", string(got))
}

func TestSaveEnforcesMaxSize(t *testing.T) {
	s, err := Open(t.TempDir(), 8)
	require.NoError(t, err)

	_, err = s.Save(bytes.NewReader(make([]byte, 9)))
	require.ErrorIs(t, err, faults.ErrInvalid)

	ref, err := s.Save(bytes.NewReader(make([]byte, 8)))
	require.NoError(t, err)
	_, size, err := s.Get(ref)
	require.NoError(t, err)
	require.Equal(t, int64(8), size)
}

func TestGetRejectsTraversal(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	require.NoError(t, err)

	for _, ref := range []string{"../etc/passwd", "blb_../x", "plain", ""} {
		_, _, err := s.Get(ref)
		require.ErrorIs(t, err, faults.ErrInvalid, ref)
	}

	_, _, err = s.Get("blb_missing")
	require.ErrorIs(t, err, faults.ErrNotFound)
}

func TestStat(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	ref, err := s.Save(strings.NewReader("abc"))
	require.NoError(t, err)

	size, err := s.Stat(ref)
	require.NoError(t, err)
	require.Equal(t, int64(3), size)

	_, err = s.Stat("blb_missing")
	require.ErrorIs(t, err, faults.ErrNotFound)
	_, err = s.Stat("../x")
	require.ErrorIs(t, err, faults.ErrInvalid)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir(), 0)
	require.NoError(t, err)
	ref, err := s.Save(strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ref))
	require.NoError(t, s.Delete(ref))
	_, _, err = s.Get(ref)
	require.ErrorIs(t, err, faults.ErrNotFound)
}
