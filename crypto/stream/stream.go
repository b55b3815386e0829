// Package stream implements the chunked authenticated-encryption streaming
// layout: reading plaintext in fixed-size chunks, sealing each one under a
// per-file key with a nonce that advances by exactly one between the
// header and every data chunk, and reversing the process on decrypt with
// truncation back to the authenticated plaintext length.
package stream

import (
	"io"

	"github.com/awnumar/memguard"

	"github.com/kryptor-app/kryptor/crypto/aead"
	"github.com/kryptor-app/kryptor/crypto/fileheader"
	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/kerrors"
)

const (
	// FileChunkSize is the plaintext chunk size this layer encrypts in.
	FileChunkSize = 16 * 1024
	// CiphertextChunkLength is the on-disk length of one sealed data chunk.
	CiphertextChunkLength = FileChunkSize + aead.TagSize
	// NonceSize is the ChaCha20 nonce length used for the header and every
	// data chunk.
	NonceSize = aead.NonceSize
	// FileKeySize is the per-file content key length.
	FileKeySize = fileheader.FileKeyLength
)

// Options carries the engine-wide behavior this module needs from its
// caller: whether file names are encrypted into the header, and whether a
// successfully encrypted input should be overwritten-then-deleted. This is
// an explicit record threaded through every call rather than a mutable
// package-level singleton.
type Options struct {
	EncryptFileNames bool
	Overwrite        bool
}

// ChunkCount returns the number of chunks a plaintext of the given length is
// split into. An empty input is still exactly one chunk (an all-zero
// sealed chunk with an authenticated plaintext length of 0).
func ChunkCount(plaintextLength int64) uint64 {
	if plaintextLength <= 0 {
		return 1
	}
	count := plaintextLength / FileChunkSize
	if plaintextLength%FileChunkSize != 0 {
		count++
	}
	return uint64(count)
}

// EncryptedSize returns the total number of ciphertext bytes
// (encrypted_header + all data chunks) that Encrypt writes for a plaintext
// of the given length, not counting any unencrypted_headers the caller
// writes separately.
func EncryptedSize(plaintextLength int64) int64 {
	return int64(fileheader.EncryptedHeaderLength) + int64(ChunkCount(plaintextLength))*CiphertextChunkLength
}

// Encrypt reads plaintext from r (exactly plaintextLength bytes), writes
// unencryptedHeaders followed by the encrypted header followed by every
// ciphertext chunk to w. The per-file key it generates is bound into the
// encrypted header and is not returned.
//
// startNonce is the nonce seed for this file; it is used for the header and
// then advanced by one for every subsequent chunk. headerKey is consumed
// (zeroized) by this call.
func Encrypt(
	w io.Writer,
	r io.Reader,
	plaintextLength int64,
	startNonce []byte,
	headerKey []byte,
	unencryptedHeaders []byte,
	fileName string,
	isDirectory bool,
	opts Options,
) error {
	const op = "stream.Encrypt"
	defer primitives.Zeroize(headerKey)

	if len(startNonce) != NonceSize {
		return kerrors.New(kerrors.PolicyViolation, op, "nonce must be 12 bytes")
	}

	fileKey, err := primitives.RandomBytes(FileKeySize)
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to generate file key", err)
	}
	defer primitives.Zeroize(fileKey)

	nonce := append([]byte(nil), startNonce...)
	defer primitives.Zeroize(nonce)

	chunkCount := ChunkCount(plaintextLength)
	ciphertextLength := chunkCount * CiphertextChunkLength

	header := fileheader.Header{
		PlaintextLength: uint64(maxInt64(plaintextLength, 0)),
		IsDirectory:     isDirectory,
		FileName:        fileName,
		FileKey:         append([]byte(nil), fileKey...),
	}

	sealedHeader, err := fileheader.Encrypt(header, ciphertextLength, unencryptedHeaders, nonce, headerKey, opts.EncryptFileNames)
	if err != nil {
		return kerrors.Wrap(kerrors.Cryptographic, op, "unable to seal file header", err)
	}

	if len(unencryptedHeaders) > 0 {
		if _, err := w.Write(unencryptedHeaders); err != nil {
			return kerrors.Wrap(kerrors.IO, op, "unable to write unencrypted headers", err)
		}
	}
	if _, err := w.Write(sealedHeader); err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to write encrypted header", err)
	}

	primitives.ConstantTimeIncrementLE(nonce)

	plaintextBuf := memguard.NewBuffer(FileChunkSize)
	defer plaintextBuf.Destroy()

	if plaintextLength <= 0 {
		for i := range plaintextBuf.Bytes() {
			plaintextBuf.Bytes()[i] = 0
		}
		if err := sealAndWrite(w, plaintextBuf.Bytes(), nonce, fileKey); err != nil {
			return kerrors.Wrap(kerrors.Cryptographic, op, "unable to seal empty-file chunk", err)
		}
		return nil
	}

	var remaining = plaintextLength
	for remaining > 0 {
		buf := plaintextBuf.Bytes()
		n, err := io.ReadFull(r, buf)
		switch {
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		case err != nil:
			return kerrors.Wrap(kerrors.IO, op, "unable to read plaintext chunk", err)
		}

		if err := sealAndWrite(w, buf, nonce, fileKey); err != nil {
			return kerrors.Wrap(kerrors.Cryptographic, op, "unable to seal plaintext chunk", err)
		}
		primitives.ConstantTimeIncrementLE(nonce)

		remaining -= int64(len(buf))
	}

	return nil
}

func sealAndWrite(w io.Writer, plaintext, nonce, fileKey []byte) error {
	ciphertext, err := aead.ChaCha20BLAKE2bEncrypt(plaintext, nonce, fileKey, nil)
	if err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}

// Decrypt reads a sealed header from r, then exactly ciphertextLength bytes
// of data chunks, writes the decrypted and truncated plaintext to w, and
// returns the decoded header (file name, directory flag). ciphertextLength
// must be supplied by the caller from the actual on-disk size of the
// ciphertext region (e.g. file size minus unencrypted-header length minus
// EncryptedHeaderLength); a value that does not match what was committed at
// encrypt time is rejected by the header's own AEAD authentication.
//
// On any failure, nothing already written to w should be trusted by the
// caller; the caller is responsible for discarding partial output.
func Decrypt(
	w io.Writer,
	r io.Reader,
	ciphertextLength uint64,
	startNonce []byte,
	headerKey []byte,
	unencryptedHeaders []byte,
) (fileheader.Header, error) {
	const op = "stream.Decrypt"
	defer primitives.Zeroize(headerKey)

	if len(startNonce) != NonceSize {
		return fileheader.Header{}, kerrors.New(kerrors.PolicyViolation, op, "nonce must be 12 bytes")
	}
	if ciphertextLength%CiphertextChunkLength != 0 {
		return fileheader.Header{}, kerrors.New(kerrors.InvalidFormat, op, "ciphertext length is not a multiple of the chunk length")
	}
	chunkCount := ciphertextLength / CiphertextChunkLength

	sealedHeader := make([]byte, fileheader.EncryptedHeaderLength)
	if _, err := io.ReadFull(r, sealedHeader); err != nil {
		return fileheader.Header{}, kerrors.Wrap(kerrors.IO, op, "unable to read encrypted header", err)
	}

	nonce := append([]byte(nil), startNonce...)
	defer primitives.Zeroize(nonce)

	header, err := fileheader.Decrypt(sealedHeader, ciphertextLength, unencryptedHeaders, nonce, append([]byte(nil), headerKey...))
	if err != nil {
		return fileheader.Header{}, kerrors.Wrap(kerrors.Cryptographic, op, "incorrect password, or tampering", err)
	}
	fileKey := header.FileKey
	defer primitives.Zeroize(fileKey)

	primitives.ConstantTimeIncrementLE(nonce)

	chunk := make([]byte, CiphertextChunkLength)
	var written uint64
	for i := uint64(0); i < chunkCount; i++ {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fileheader.Header{}, kerrors.Wrap(kerrors.IO, op, "unable to read ciphertext chunk", err)
		}

		plaintext, err := aead.ChaCha20BLAKE2bDecrypt(chunk, nonce, fileKey, nil)
		if err != nil {
			return fileheader.Header{}, kerrors.Wrap(kerrors.Cryptographic, op, "incorrect password, or tampering", err)
		}
		primitives.ConstantTimeIncrementLE(nonce)

		toWrite := plaintext
		if remaining := header.PlaintextLength - written; uint64(len(plaintext)) > remaining {
			toWrite = plaintext[:remaining]
		}
		if len(toWrite) > 0 {
			if _, err := w.Write(toWrite); err != nil {
				primitives.Zeroize(plaintext)
				return fileheader.Header{}, kerrors.Wrap(kerrors.IO, op, "unable to write plaintext chunk", err)
			}
		}
		written += uint64(len(toWrite))
		primitives.Zeroize(plaintext)
	}

	return header, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
