// Package fileheader builds and parses the encrypted file header: the
// record binding plaintext length, directory flag, file name, and the
// per-file content key, sealed with ChaCha20-BLAKE2b and bound to the
// ciphertext length and any protocol-supplied unencrypted headers.
package fileheader

import (
	"encoding/binary"

	"github.com/kryptor-app/kryptor/crypto/aead"
	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/kerrors"
)

const (
	// FileNameHeaderLength is the fixed, zero-padded width of the file-name
	// field inside the plaintext header.
	FileNameHeaderLength = 255
	// SpareLength is the reserved, always-zero field inside the plaintext
	// header.
	SpareLength = 32
	// FileKeyLength is the per-file content key embedded in the header.
	FileKeyLength = 32

	plaintextLengthSize = 8
	isDirectorySize     = 1
	fileNameLengthSize  = 4

	// PlaintextHeaderLength is the size of the header before sealing.
	PlaintextHeaderLength = plaintextLengthSize + isDirectorySize + fileNameLengthSize +
		FileNameHeaderLength + SpareLength + FileKeyLength

	// EncryptedHeaderLength is the size of the header as written to disk,
	// after ChaCha20-BLAKE2b sealing.
	EncryptedHeaderLength = PlaintextHeaderLength + aead.TagSize

	ciphertextLengthSize = 8
)

// Header is the decoded form of the plaintext file header.
type Header struct {
	PlaintextLength uint64
	IsDirectory     bool
	FileName        string
	FileKey         []byte // exactly FileKeyLength bytes
}

// Encrypt builds and seals the file header. ciphertextLength (chunk_count *
// CiphertextChunkLength, computed by the streaming layer that owns the chunk
// size) and unencryptedHeaders determine the associated data;
// encryptFileNames controls whether FileName is written into the padded
// field or left as zero with file_name_length = 0. The plaintext header
// buffer and headerKey are zeroized before returning, on both the success
// and error paths.
func Encrypt(h Header, ciphertextLength uint64, unencryptedHeaders, nonce, headerKey []byte, encryptFileNames bool) ([]byte, error) {
	const op = "fileheader.Encrypt"
	defer primitives.Zeroize(headerKey)

	if len(h.FileKey) != FileKeyLength {
		return nil, kerrors.New(kerrors.PolicyViolation, op, "file key must be 32 bytes")
	}

	associatedData := buildAssociatedData(ciphertextLength, unencryptedHeaders)

	plaintext := make([]byte, PlaintextHeaderLength)
	defer primitives.Zeroize(plaintext)

	binary.LittleEndian.PutUint64(plaintext[0:8], h.PlaintextLength)
	if h.IsDirectory {
		plaintext[8] = 1
	}

	offset := plaintextLengthSize + isDirectorySize + fileNameLengthSize
	if encryptFileNames {
		nameBytes := []byte(h.FileName)
		if len(nameBytes) > FileNameHeaderLength {
			return nil, kerrors.New(kerrors.PolicyViolation, op, "file name too long to encode")
		}
		binary.LittleEndian.PutUint32(plaintext[9:13], uint32(len(nameBytes)))
		copy(plaintext[offset:offset+FileNameHeaderLength], nameBytes)
	}
	// file_name_length remains 0 and the padded field remains zeros when
	// file-name encryption is disabled; do not copy the name in that case.

	offset += FileNameHeaderLength + SpareLength
	copy(plaintext[offset:offset+FileKeyLength], h.FileKey)

	sealed, err := aead.ChaCha20BLAKE2bEncrypt(plaintext, nonce, headerKey, associatedData)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to seal file header", err)
	}
	return sealed, nil
}

// Decrypt opens a sealed file header previously produced by Encrypt, given
// the same ciphertextLength and unencryptedHeaders used to build its
// associated data. On any AEAD failure it returns a Cryptographic error.
func Decrypt(sealed []byte, ciphertextLength uint64, unencryptedHeaders, nonce, headerKey []byte) (Header, error) {
	const op = "fileheader.Decrypt"
	defer primitives.Zeroize(headerKey)

	if len(sealed) != EncryptedHeaderLength {
		return Header{}, kerrors.New(kerrors.InvalidFormat, op, "encrypted header has the wrong length")
	}

	associatedData := buildAssociatedData(ciphertextLength, unencryptedHeaders)

	plaintext, err := aead.ChaCha20BLAKE2bDecrypt(sealed, nonce, headerKey, associatedData)
	if err != nil {
		return Header{}, kerrors.Wrap(kerrors.Cryptographic, op, "incorrect password, or tampering", err)
	}
	defer primitives.Zeroize(plaintext)

	plaintextLength := binary.LittleEndian.Uint64(plaintext[0:8])
	isDirectory := plaintext[8] != 0
	fileNameLength := binary.LittleEndian.Uint32(plaintext[9:13])
	if fileNameLength > FileNameHeaderLength {
		return Header{}, kerrors.New(kerrors.PolicyViolation, op, "file name length out of range")
	}

	offset := plaintextLengthSize + isDirectorySize + fileNameLengthSize
	fileName := string(plaintext[offset : offset+int(fileNameLength)])

	offset += FileNameHeaderLength + SpareLength
	fileKey := make([]byte, FileKeyLength)
	copy(fileKey, plaintext[offset:offset+FileKeyLength])

	return Header{
		PlaintextLength: plaintextLength,
		IsDirectory:     isDirectory,
		FileName:        fileName,
		FileKey:         fileKey,
	}, nil
}

func buildAssociatedData(ciphertextLength uint64, unencryptedHeaders []byte) []byte {
	ad := make([]byte, 0, ciphertextLengthSize+len(unencryptedHeaders))
	lenBytes := make([]byte, ciphertextLengthSize)
	binary.LittleEndian.PutUint64(lenBytes, ciphertextLength)
	ad = append(ad, lenBytes...)
	ad = append(ad, unencryptedHeaders...)
	return ad
}
