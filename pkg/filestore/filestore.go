// Package filestore persists library files under a configured root
// directory. Every operation takes validated store paths, writes through
// temporary siblings, and reports the streaming SHA-256 of whatever it wrote.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mbs4/mbs4/pkg/storepath"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the addressed file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrNotAFile is returned when the addressed path exists but is not a
	// regular file.
	ErrNotAFile = errors.New("not a regular file")
	// ErrPathConflict is returned when the destination and all collision
	// candidates are occupied.
	ErrPathConflict = errors.New("path conflict")
)

// maxCollisionSuffix bounds the "name(N).ext" candidates tried before a
// write gives up with ErrPathConflict.
const maxCollisionSuffix = 10

// Info describes a completed write.
type Info struct {
	FinalPath storepath.Path `json:"final_path"`
	Size      int64          `json:"size"`
	Hash      string         `json:"hash"`
}

// Store maps store paths onto files under root. The mutex serialises only
// destination selection and the final rename; data copies run unlocked.
type Store struct {
	root string

	mu sync.Mutex
}

// New creates the store root (and the reserved prefixes) if missing.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, prefix := range []storepath.Prefix{
		storepath.PrefixUpload,
		storepath.PrefixBooks,
		storepath.PrefixIcons,
		storepath.PrefixConverted,
	} {
		if err := os.MkdirAll(filepath.Join(abs, prefix.String()), 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string {
	return s.root
}

// LocalPath resolves a store path to an absolute filesystem path for
// consumers that must hand a real path to an external process.
func (s *Store) LocalPath(path storepath.Path) string {
	return filepath.Join(s.root, filepath.FromSlash(path.String()))
}

// StoreData writes data under path, diverting to a collision-free variant
// when the name is taken.
func (s *Store) StoreData(ctx context.Context, path storepath.Path, data []byte) (Info, error) {
	return s.StoreStream(ctx, path, bytes.NewReader(data))
}

// StoreStream streams r into a temporary sibling of path, fsyncs, then
// renames to a collision-free final name. On any mid-write failure the
// temporary file is removed and nothing appears under the final name.
func (s *Store) StoreStream(ctx context.Context, path storepath.Path, r io.Reader) (Info, error) {
	abs := s.LocalPath(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Info{}, errors.WithStack(err)
	}

	temp, size, hash, err := s.writeTemp(ctx, filepath.Dir(abs), filepath.Base(abs), r)
	if err != nil {
		return Info{}, err
	}

	final, err := s.renameToFree(temp, path)
	if err != nil {
		os.Remove(temp)
		return Info{}, err
	}
	return Info{FinalPath: final, Size: size, Hash: hash}, nil
}

// StoreDataOverwrite writes data to "<path>.tmp" and renames it over the
// target. Used for small authoritative updates where replacing is intended.
func (s *Store) StoreDataOverwrite(ctx context.Context, path storepath.Path, data []byte) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, errors.WithStack(err)
	}
	abs := s.LocalPath(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Info{}, errors.WithStack(err)
	}

	temp := abs + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return Info{}, errors.WithStack(err)
	}
	if err := os.Rename(temp, abs); err != nil {
		os.Remove(temp)
		return Info{}, errors.WithStack(err)
	}

	digest := sha256.Sum256(data)
	return Info{
		FinalPath: path,
		Size:      int64(len(data)),
		Hash:      hex.EncodeToString(digest[:]),
	}, nil
}

// LoadData opens the file for streaming reads. The descriptor closes with
// the returned reader.
func (s *Store) LoadData(ctx context.Context, path storepath.Path) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := os.Open(s.LocalPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.WithStack(err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, errors.Wrapf(ErrNotAFile, "%s", path)
	}
	return f, nil
}

// Size returns the file size in bytes.
func (s *Store) Size(ctx context.Context, path storepath.Path) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	stat, err := os.Stat(s.LocalPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return 0, errors.WithStack(err)
	}
	return stat.Size(), nil
}

// Exists reports whether a regular file sits at path.
func (s *Store) Exists(ctx context.Context, path storepath.Path) bool {
	if ctx.Err() != nil {
		return false
	}
	stat, err := os.Stat(s.LocalPath(path))
	return err == nil && stat.Mode().IsRegular()
}

// Rename moves a stored file to a collision-free destination under to and
// returns the chosen path.
func (s *Store) Rename(ctx context.Context, from, to storepath.Path) (storepath.Path, error) {
	if err := ctx.Err(); err != nil {
		return storepath.Path{}, errors.WithStack(err)
	}
	absFrom := s.LocalPath(from)
	stat, err := os.Lstat(absFrom)
	if err != nil {
		if os.IsNotExist(err) {
			return storepath.Path{}, errors.Wrapf(ErrNotFound, "%s", from)
		}
		return storepath.Path{}, errors.WithStack(err)
	}
	if !stat.Mode().IsRegular() {
		return storepath.Path{}, errors.Wrapf(ErrNotAFile, "%s", from)
	}
	if err := os.MkdirAll(filepath.Dir(s.LocalPath(to)), 0o755); err != nil {
		return storepath.Path{}, errors.WithStack(err)
	}
	return s.renameToFree(absFrom, to)
}

// ImportFile brings a file from outside the store under to. It tries an
// atomic rename when move is set and falls back to copy-via-temp on a
// cross-device link error; with move unset it always copies. The source is
// deleted only when move is set and the import succeeded.
func (s *Store) ImportFile(ctx context.Context, externalPath string, to storepath.Path, move bool) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, errors.WithStack(err)
	}
	absTo := s.LocalPath(to)
	if err := os.MkdirAll(filepath.Dir(absTo), 0o755); err != nil {
		return Info{}, errors.WithStack(err)
	}

	if move {
		final, err := s.renameToFree(externalPath, to)
		if err == nil {
			return s.describe(final)
		}
		if !errors.Is(err, syscall.EXDEV) {
			return Info{}, err
		}
	}

	src, err := os.Open(externalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.Wrapf(ErrNotFound, "%s", externalPath)
		}
		return Info{}, errors.WithStack(err)
	}
	defer src.Close()

	temp, size, hash, err := s.writeTemp(ctx, filepath.Dir(absTo), filepath.Base(absTo), src)
	if err != nil {
		return Info{}, err
	}
	final, err := s.renameToFree(temp, to)
	if err != nil {
		os.Remove(temp)
		return Info{}, err
	}
	if move {
		if err := os.Remove(externalPath); err != nil {
			return Info{}, errors.WithStack(err)
		}
	}
	return Info{FinalPath: final, Size: size, Hash: hash}, nil
}

// Describe re-reads a stored file, reporting its size and hex SHA-256.
func (s *Store) Describe(ctx context.Context, path storepath.Path) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, errors.WithStack(err)
	}
	return s.describe(path)
}

// Delete removes the file at path.
func (s *Store) Delete(ctx context.Context, path storepath.Path) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Remove(s.LocalPath(path)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%s", path)
		}
		return errors.WithStack(err)
	}
	return nil
}

// Cleanup removes regular files under the given prefix whose modification
// time is older than maxAge, reporting how many were removed.
func (s *Store) Cleanup(ctx context.Context, prefix storepath.Prefix, maxAge time.Duration) (int, error) {
	if !prefix.Valid() {
		return 0, errors.Errorf("unknown prefix %q", prefix)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	root := filepath.Join(s.root, prefix.String())
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, errors.WithStack(err)
	}
	return removed, nil
}

// writeTemp streams r into a fresh uniquely named temp file in dir, syncing
// before close. It returns the temp path, byte count, and hex SHA-256. The
// temp file is removed on failure.
func (s *Store) writeTemp(ctx context.Context, dir, base string, r io.Reader) (string, int64, string, error) {
	temp := filepath.Join(dir, base+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, "", errors.WithStack(err)
	}

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, digest), &contextReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(temp)
		return "", 0, "", errors.WithStack(err)
	}
	return temp, size, hex.EncodeToString(digest.Sum(nil)), nil
}

// renameToFree picks the first free destination for want (the exact name,
// then "name(N).ext" for N in 1..10) and renames src onto it. Selection and
// rename happen under the store mutex.
func (s *Store) renameToFree(src string, want storepath.Path) (storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := want
	for n := 0; n <= maxCollisionSuffix; n++ {
		if n > 0 {
			var err error
			candidate, err = suffixed(want, n)
			if err != nil {
				return storepath.Path{}, err
			}
		}
		abs := s.LocalPath(candidate)
		if _, err := os.Lstat(abs); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return storepath.Path{}, errors.WithStack(err)
		}
		if err := os.Rename(src, abs); err != nil {
			return storepath.Path{}, errors.WithStack(err)
		}
		return candidate, nil
	}
	return storepath.Path{}, errors.Wrapf(ErrPathConflict, "%s", want)
}

// suffixed derives the nth collision candidate: "dir/name(N).ext".
func suffixed(path storepath.Path, n int) (storepath.Path, error) {
	base := path.Base()
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dir := strings.TrimSuffix(path.String(), base)
	return storepath.New(fmt.Sprintf("%s%s(%d)%s", dir, stem, n, ext))
}

func (s *Store) describe(path storepath.Path) (Info, error) {
	f, err := os.Open(s.LocalPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return Info{}, errors.WithStack(err)
	}
	defer f.Close()

	digest := sha256.New()
	size, err := io.Copy(digest, f)
	if err != nil {
		return Info{}, errors.WithStack(err)
	}
	return Info{FinalPath: path, Size: size, Hash: hex.EncodeToString(digest.Sum(nil))}, nil
}

// contextReader aborts an in-flight copy once its context is cancelled, so a
// dropped client connection stops the write at the next chunk boundary.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
