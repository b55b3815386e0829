package stream_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kryptor-app/kryptor/crypto/stream"
	"github.com/kryptor-app/kryptor/kerrors"
	"github.com/stretchr/testify/require"
)

func TestEncryptFileDecryptFile_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "plain.txt")
	outputPath := filepath.Join(dir, "plain.txt.enc")
	decryptedPath := filepath.Join(dir, "plain.txt.dec")

	content := []byte("the only winning move is not to play\n")
	require.NoError(t, os.WriteFile(inputPath, content, 0o600))

	nonce := fixedNonce(0x20)
	headerKey := fixedKey(0x21)

	err := stream.EncryptFile(inputPath, outputPath, false, nonce, append([]byte(nil), headerKey...), nil, stream.Options{EncryptFileNames: true})
	require.NoError(t, err)

	header, err := stream.DecryptFile(outputPath, decryptedPath, false, nonce, append([]byte(nil), headerKey...), nil)
	require.NoError(t, err)
	require.Equal(t, "plain.txt", header.FileName)
	require.Equal(t, uint64(len(content)), header.PlaintextLength)

	decrypted, err := os.ReadFile(decryptedPath)
	require.NoError(t, err)
	require.Equal(t, content, decrypted)
}

func TestEncryptFile_OverwriteDisposesOfInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "secret.txt")
	outputPath := filepath.Join(dir, "secret.txt.enc")

	require.NoError(t, os.WriteFile(inputPath, []byte("dispose of me"), 0o600))

	err := stream.EncryptFile(inputPath, outputPath, false, fixedNonce(0x22), fixedKey(0x23), nil, stream.Options{Overwrite: true})
	require.NoError(t, err)

	_, statErr := os.Stat(inputPath)
	require.True(t, os.IsNotExist(statErr))

	fi, err := os.Stat(outputPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o400), fi.Mode().Perm())
}

func TestEncryptFile_RefusesExistingOutputWithoutOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.txt")
	outputPath := filepath.Join(dir, "out.enc")

	require.NoError(t, os.WriteFile(inputPath, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(outputPath, []byte("already here"), 0o600))

	err := stream.EncryptFile(inputPath, outputPath, false, fixedNonce(0x24), fixedKey(0x25), nil, stream.Options{})
	require.Error(t, err)
	require.True(t, kerrors.Is(err, kerrors.PolicyViolation))
}

func TestDecryptFile_WrongHeaderKeyLeavesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.txt")
	encPath := filepath.Join(dir, "in.enc")
	decPath := filepath.Join(dir, "in.dec")

	require.NoError(t, os.WriteFile(inputPath, []byte("payload"), 0o600))

	nonce := fixedNonce(0x26)
	err := stream.EncryptFile(inputPath, encPath, false, nonce, fixedKey(0x27), nil, stream.Options{})
	require.NoError(t, err)

	_, err = stream.DecryptFile(encPath, decPath, false, nonce, fixedKey(0x28), nil)
	require.Error(t, err)
	require.True(t, kerrors.Is(err, kerrors.Cryptographic))

	_, statErr := os.Stat(decPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestEncryptFileDecryptFile_WithUnencryptedHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.txt")
	encPath := filepath.Join(dir, "in.enc")
	decPath := filepath.Join(dir, "in.dec")

	content := bytes.Repeat([]byte{0x77}, 100)
	require.NoError(t, os.WriteFile(inputPath, content, 0o600))

	unencrypted := []byte("ephemeral-x25519-pubkey+salt")
	nonce := fixedNonce(0x29)
	headerKey := fixedKey(0x2A)

	require.NoError(t, stream.EncryptFile(inputPath, encPath, false, nonce, append([]byte(nil), headerKey...), unencrypted, stream.Options{}))

	sealed, err := os.ReadFile(encPath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(sealed, unencrypted))

	_, err = stream.DecryptFile(encPath, decPath, false, nonce, append([]byte(nil), headerKey...), unencrypted)
	require.NoError(t, err)

	decrypted, err := os.ReadFile(decPath)
	require.NoError(t, err)
	require.Equal(t, content, decrypted)
}
