// Package symmetrickey resolves a user-supplied string into 32 bytes of key
// material: a base64 key-string, an existing keyfile, a directory in which
// to create one, or the "generate a fresh key" sentinel.
package symmetrickey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/ioutil/filepolicy"
	"github.com/kryptor-app/kryptor/kerrors"
	"github.com/kryptor-app/kryptor/log"
)

const (
	// KeySize is the length of the resolved symmetric key.
	KeySize = 32
	// HashLength is the BLAKE2b output length used to derive a key from a
	// keyfile's contents.
	HashLength = 32
	// KeyfileExtension is appended to a generated keyfile's name when the
	// caller-supplied path lacks it.
	KeyfileExtension = ".key"
	// KeyfileLength is the size of a freshly generated keyfile.
	KeyfileLength = 1 << 20 // 1 MiB
	// randomFilenameLength is the length of the random name used when a
	// directory is supplied in place of a keyfile path.
	randomFilenameLength = 16
	// maxKeyfileHashSize bounds how much of an existing file this package
	// will hash, to avoid a memory/CPU bomb from an oversized keyfile.
	maxKeyfileHashSize = 1 << 30 // 1 GiB

	// generateSentinel is the surprising-by-design "please generate a new
	// key for me" input: a single space.
	generateSentinel = " "
)

// SymmetricKeyHeader is the 4-byte magic prefixing a symmetric key-string,
// identifying the key-string format.
var SymmetricKeyHeader = [4]byte{'K', 'R', 'Y', '1'}

// SymmetricKeyLength is the exact length of a base64-encoded key-string:
// base64 of header(4) || key(32) is 36 bytes, which encodes to exactly 48
// base64 characters with no padding.
const SymmetricKeyLength = 48

// Resolve classifies s per the resolver's decision tree and returns the
// resolved 32-byte key. When s is the generate sentinel, display is the
// base64 string the caller should show the user (the encoding of
// SymmetricKeyHeader || key, so it decodes to bytes starting with
// SymmetricKeyHeader); otherwise display is empty. An empty s
// resolves to a nil key and no error ("none").
func Resolve(s string) (key []byte, display string, err error) {
	const op = "symmetrickey.Resolve"

	if s == "" {
		return nil, "", nil
	}

	if s == generateSentinel {
		return generate(op)
	}

	if len(s) == SymmetricKeyLength {
		key, err := KeyString(s)
		if err != nil {
			return nil, "", err
		}
		return key, "", nil
	}

	path, err := resolvePath(s)
	if err != nil {
		return nil, "", err
	}

	key, err = ReadKeyfile(path)
	if err != nil {
		return nil, "", err
	}
	return key, "", nil
}

func generate(op string) ([]byte, string, error) {
	key, err := primitives.RandomBytes(KeySize)
	if err != nil {
		return nil, "", kerrors.Wrap(kerrors.IO, op, "unable to generate random key", err)
	}

	raw := make([]byte, 0, len(SymmetricKeyHeader)+KeySize)
	raw = append(raw, SymmetricKeyHeader[:]...)
	raw = append(raw, key...)
	return key, base64.StdEncoding.EncodeToString(raw), nil
}

// resolvePath implements steps 4-7 of the resolver: existing file, existing
// directory, extension normalization, and generate-on-miss.
func resolvePath(s string) (string, error) {
	const op = "symmetrickey.Resolve"

	fi, statErr := os.Stat(s)
	switch {
	case statErr == nil && fi.Mode().IsRegular():
		return s, nil
	case statErr == nil && fi.IsDir():
		name, err := primitives.RandomFilenameChars(randomFilenameLength)
		if err != nil {
			return "", kerrors.Wrap(kerrors.IO, op, "unable to generate random keyfile name", err)
		}
		s = filepath.Join(s, name+KeyfileExtension)
	case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
		return "", kerrors.Wrap(kerrors.IO, op, "unable to stat keyfile path", statErr)
	}

	if filepath.Ext(s) != KeyfileExtension {
		s += KeyfileExtension
	}

	if fi, err := os.Stat(s); err == nil && fi.Mode().IsRegular() {
		return s, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", kerrors.Wrap(kerrors.IO, op, "unable to stat keyfile path", err)
	}

	if err := generateKeyfile(s); err != nil {
		return "", err
	}
	return s, nil
}

// generateKeyfile atomically stages KeyfileLength random bytes at path via
// the same temp-name-in-same-dir, fsync, rename-on-success contract the
// chunked engine uses for its own output (filepolicy.CreateOutput), so a
// crash mid-generation never leaves a partial keyfile at path.
func generateKeyfile(path string) error {
	const op = "symmetrickey.Resolve"

	content, err := primitives.RandomBytes(KeyfileLength)
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to generate keyfile content", err)
	}

	out, err := filepolicy.CreateOutput(path, true)
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to stage keyfile", err)
	}
	if _, err := out.Write(content); err != nil {
		_ = out.Abort()
		return kerrors.Wrap(kerrors.IO, op, "unable to write keyfile", err)
	}
	if err := out.Commit(); err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to commit keyfile", err)
	}

	if err := filepolicy.MarkReadOnly(path); err != nil {
		log.Error(err).Messagef("unable to flag keyfile %q read-only", path)
	}
	return nil
}

// KeyString parses a base64 key-string of exactly SymmetricKeyLength
// characters and returns its embedded 32-byte key. The leading
// SymmetricKeyHeader is checked in constant time.
func KeyString(s string) ([]byte, error) {
	const op = "symmetrickey.KeyString"

	if len(s) != SymmetricKeyLength {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "key-string has the wrong length")
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.InvalidFormat, op, "unable to decode base64 key-string", err)
	}
	if len(raw) != len(SymmetricKeyHeader)+KeySize {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "decoded key-string has the wrong length")
	}

	if !primitives.ConstantTimeEqual(raw[:len(SymmetricKeyHeader)], SymmetricKeyHeader[:]) {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "unrecognized key-string header")
	}

	return raw[len(SymmetricKeyHeader):], nil
}

// ReadKeyfile hashes the entire contents of the file at path with unkeyed
// BLAKE2b, HashLength bytes, and returns the digest as the derived key.
func ReadKeyfile(path string) ([]byte, error) {
	const op = "symmetrickey.ReadKeyfile"

	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to open keyfile", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error(err).Messagef("unable to close keyfile %q", path)
		}
	}()

	hasher, err := primitives.NewBlake2bHasher(HashLength)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to initialize keyfile hasher", err)
	}

	if _, err := copyCapped(hasher, f, maxKeyfileHashSize); err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to hash keyfile", err)
	}

	return hasher.Sum(nil), nil
}

// errKeyfileTooLarge is returned by copyCapped when a keyfile exceeds
// maxKeyfileHashSize, guarding against a memory/CPU bomb from an oversized
// file handed to ReadKeyfile.
var errKeyfileTooLarge = errors.New("keyfile exceeds the maximum size this package will hash")

// copyCapped streams src into dst, stopping with errKeyfileTooLarge as soon
// as more than maxSize bytes would be copied rather than buffering an
// unbounded file to find out after the fact: src is wrapped in a limit
// reader of maxSize+1 bytes, so a copy that reads exactly maxSize+1 bytes
// proves the real input is too large without ever reading all of it.
func copyCapped(dst io.Writer, src io.Reader, maxSize uint64) (uint64, error) {
	written, err := io.Copy(dst, io.LimitReader(src, int64(maxSize)+1))
	if err != nil {
		return uint64(written), fmt.Errorf("unable to stream keyfile content: %w", err)
	}
	if uint64(written) > maxSize {
		return uint64(written), errKeyfileTooLarge
	}
	return uint64(written), nil
}
