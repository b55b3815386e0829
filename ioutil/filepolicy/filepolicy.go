// Package filepolicy implements the file I/O policy this engine applies
// around encryption and decryption: opening input files acceptably, writing
// output atomically, and disposing of plaintext after a successful run
// (overwrite-with-random-then-delete, or plain delete, followed by flagging
// the output read-only).
package filepolicy

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/kerrors"
	"github.com/kryptor-app/kryptor/log"
)

// maxAcceptableInputSize bounds the size of a file this policy will agree to
// open for encryption or decryption, the same defensive ceiling the
// teacher's hashutil package applies before hashing arbitrary input.
const maxAcceptableInputSize = 64 * 1024 * 1024 * 1024 // 64 GiB

// OpenForRead opens path for sequential reading, rejecting directories,
// irregular files (devices, sockets, symlinked loops resolved by the OS) and
// anything larger than this policy's acceptable size.
func OpenForRead(path string) (*os.File, error) {
	const op = "filepolicy.OpenForRead"

	fi, err := os.Stat(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to stat input file", err)
	}
	if err := isAcceptable(fi); err != nil {
		return nil, kerrors.Wrap(kerrors.PolicyViolation, op, "input file rejected", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to open input file", err)
	}
	return f, nil
}

func isAcceptable(fi fs.FileInfo) error {
	switch {
	case fi == nil:
		return errors.New("file information must not be nil")
	case fi.IsDir():
		return errors.New("unable to open a directory as input")
	case !fi.Mode().IsRegular():
		return errors.New("the target is not a regular file")
	case fi.Size() > maxAcceptableInputSize:
		return errors.New("file too large to be processed")
	default:
		return nil
	}
}

// OutputWriter is a staged output file: every Write goes to a temporary file
// in the same directory as the final path, so the final Commit is a single
// atomic rename and a failed run never leaves a partially written file at
// the target path.
type OutputWriter struct {
	finalPath string
	tmp       *os.File
	buffered  *bufio.Writer
	committed bool
}

// CreateOutput stages a new output file for path. If overwrite is false and
// path already exists, it fails with PolicyViolation.
func CreateOutput(path string, overwrite bool) (*OutputWriter, error) {
	const op = "filepolicy.CreateOutput"

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, kerrors.New(kerrors.PolicyViolation, op, "output file already exists")
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, kerrors.Wrap(kerrors.IO, op, "unable to stat output file", err)
		}
	}

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(filepath.Clean(dir), file)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to create temporary output file", err)
	}

	return &OutputWriter{
		finalPath: path,
		tmp:       tmp,
		buffered:  bufio.NewWriter(tmp),
	}, nil
}

// Write streams one more piece of ciphertext into the staged output.
func (w *OutputWriter) Write(p []byte) (int, error) {
	n, err := w.buffered.Write(p)
	if err != nil {
		return n, fmt.Errorf("unable to write to staged output file: %w", err)
	}
	return n, nil
}

// Commit flushes, fsyncs, and atomically renames the staged file into place.
// On any failure it removes the temporary file so nothing partial is left
// behind.
func (w *OutputWriter) Commit() error {
	const op = "filepolicy.CreateOutput.Commit"

	if err := w.buffered.Flush(); err != nil {
		w.cleanupTemp()
		return kerrors.Wrap(kerrors.IO, op, "unable to flush staged output", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.cleanupTemp()
		return kerrors.Wrap(kerrors.IO, op, "unable to sync staged output", err)
	}
	tmpName := w.tmp.Name()
	if err := w.tmp.Close(); err != nil {
		w.cleanupTemp()
		return kerrors.Wrap(kerrors.IO, op, "unable to close staged output", err)
	}

	if err := syncDir(filepath.Dir(tmpName)); err != nil {
		log.Error(err).Messagef("unable to sync directory for %q", tmpName)
	}

	if err := os.Rename(tmpName, w.finalPath); err != nil {
		if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			log.Error(removeErr).Messagef("unable to remove temporary file %q", tmpName)
		}
		return kerrors.Wrap(kerrors.IO, op, "unable to replace target output file", err)
	}

	w.committed = true
	return nil
}

// Abort discards the staged output, removing the temporary file. It is a
// no-op if Commit already succeeded.
func (w *OutputWriter) Abort() error {
	if w.committed {
		return nil
	}
	w.cleanupTemp()
	return nil
}

func (w *OutputWriter) cleanupTemp() {
	name := w.tmp.Name()
	if err := w.tmp.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
		log.Error(err).Messagef("unable to close temporary file %q", name)
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error(err).Messagef("unable to remove temporary file %q", name)
	}
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("unable to open directory %q: %w", dir, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error(err).Messagef("unable to close directory handle %q", dir)
		}
	}()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("unable to sync directory %q: %w", dir, err)
	}
	return nil
}

// MarkReadOnly flags path as read-only for its owner, and non-writable for
// everyone else, the final step applied to a successfully produced output
// file.
func MarkReadOnly(path string) error {
	if err := os.Chmod(path, 0o400); err != nil {
		return kerrors.Wrap(kerrors.IO, "filepolicy.MarkReadOnly", "unable to flag file read-only", err)
	}
	return nil
}

// OverwriteAndDelete overwrites path with random bytes of exactly its
// current length, syncs, and deletes it — the "overwrite input" disposal
// policy applied to a plaintext file after it has been successfully
// encrypted.
func OverwriteAndDelete(path string) error {
	const op = "filepolicy.OverwriteAndDelete"

	fi, err := os.Stat(path)
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to stat file for overwrite", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to open file for overwrite", err)
	}

	size := fi.Size()
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	var written int64
	var writeErr error
	for written < size {
		n := bufSize
		if remaining := size - written; remaining < int64(bufSize) {
			n = int(remaining)
		}
		if err := primitives.RandomFill(buf[:n]); err != nil {
			writeErr = err
			break
		}
		if _, err := f.Write(buf[:n]); err != nil {
			writeErr = err
			break
		}
		written += int64(n)
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to overwrite file contents", writeErr)
	}

	if err := os.Remove(path); err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to delete overwritten file", err)
	}
	return nil
}

// DeleteAtomic removes path, treating a missing file as success. Partially
// written output is not discarded through it: OutputWriter.Abort removes the
// staged temporary file instead.
func DeleteAtomic(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return kerrors.Wrap(kerrors.IO, "filepolicy.DeleteAtomic", "unable to delete file", err)
	}
	return nil
}
