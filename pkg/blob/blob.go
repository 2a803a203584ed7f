// Package blob stores uploaded media (avatars, group images) on local
// disk under opaque references.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"parlor/pkg/faults"
	"parlor/pkg/logger"
	"parlor/pkg/utils"
)

// Store writes blobs to a flat directory, one file per reference.
type Store struct {
	dir     string
	maxSize uint64
}

func Open(dir string, maxSize uint64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Save streams r to disk and returns the new reference. Uploads over
// the size limit are rejected and the partial file removed.
func (s *Store) Save(r io.Reader) (string, error) {
	ref := utils.GenBlobRef()
	path := filepath.Join(s.dir, ref)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var n int64
	if s.maxSize > 0 {
		n, err = io.Copy(f, io.LimitReader(r, int64(s.maxSize)+1))
		if err == nil && uint64(n) > s.maxSize {
			os.Remove(path)
			return "", fmt.Errorf("blob exceeds %d bytes: %w", s.maxSize, faults.ErrInvalid)
		}
	} else {
		n, err = io.Copy(f, r)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	logger.Debug("blob_saved", "ref", ref, "bytes", n)
	return ref, nil
}

// Get opens the blob for reading.
func (s *Store) Get(ref string) (io.ReadCloser, int64, error) {
	if !validRef(ref) {
		return nil, 0, fmt.Errorf("blob ref %q: %w", ref, faults.ErrInvalid)
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("blob %s: %w", ref, faults.ErrNotFound)
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Stat reports the stored size of a blob; ErrNotFound when absent.
// Used to vet a client-supplied reference before persisting it.
func (s *Store) Stat(ref string) (int64, error) {
	if !validRef(ref) {
		return 0, fmt.Errorf("blob ref %q: %w", ref, faults.ErrInvalid)
	}
	fi, err := os.Stat(filepath.Join(s.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob %s: %w", ref, faults.ErrNotFound)
		}
		return 0, err
	}
	return fi.Size(), nil
}

// Delete removes a blob; missing refs are not an error.
func (s *Store) Delete(ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("blob ref %q: %w", ref, faults.ErrInvalid)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// validRef rejects anything that could escape the blob directory.
func validRef(ref string) bool {
	if !strings.HasPrefix(ref, "blb_") {
		return false
	}
	return !strings.ContainsAny(ref, "/\\.")
}
