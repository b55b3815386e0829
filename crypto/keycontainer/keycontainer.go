// Package keycontainer implements the password-protected private-key
// container: the current V2 on-disk format (key-committing, Argon2id-gated)
// and read support for the legacy V1 format it replaced.
package keycontainer

import (
	"encoding/binary"

	"github.com/kryptor-app/kryptor/crypto/aead"
	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/kerrors"
)

const (
	// AlgorithmHeaderSize is the length of the caller-supplied tag
	// identifying the key's algorithm (e.g. Curve25519 or Ed25519).
	AlgorithmHeaderSize = 4
	// VersionSize is the length of the embedded format-version field.
	VersionSize = 4
	// SaltSize is the Argon2id salt length.
	SaltSize = 16

	// version2 tags the current key-committing format.
	version2 = uint32(2)
	// version1 tags the legacy XChaCha20-BLAKE2b format, decrypt-only.
	version1 = uint32(1)

	// v1Iterations is pinned literally for backward compatibility with
	// blobs produced before Argon2id parameters were made configurable.
	// Do not raise it: existing V1 containers were derived with this
	// exact work factor.
	v1Iterations = 12
)

// nonceZero is the all-zero 12-byte nonce every V2 container uses; the salt
// and the Argon2id-derived key already make the (key, nonce) pair unique
// per container.
var nonceZero = make([]byte, aead.NonceSize)

// Params configures the Argon2id work factor for V2 containers. Callers own
// this because it is not recorded inside the container itself.
type Params struct {
	Iterations uint32
	MemoryKiB  uint32
}

// EncryptV2 seals privateKey under password, returning a V2 container:
// algorithm_header || version2 || salt || commitment || ciphertext || tag.
// privateKey and password are zeroized before returning, on both the
// success and error paths.
func EncryptV2(privateKey, password []byte, algorithmHeader [AlgorithmHeaderSize]byte, params Params) ([]byte, error) {
	const op = "keycontainer.EncryptV2"
	defer primitives.Zeroize(privateKey)
	defer primitives.Zeroize(password)

	salt, err := primitives.RandomBytes(SaltSize)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.IO, op, "unable to generate salt", err)
	}

	key := make([]byte, aead.KeySize)
	primitives.Argon2idDerive(key, password, salt, params.Iterations, params.MemoryKiB)
	defer primitives.Zeroize(key)

	associatedData := make([]byte, 0, AlgorithmHeaderSize+VersionSize)
	associatedData = append(associatedData, algorithmHeader[:]...)
	associatedData = append(associatedData, encodeVersion(version2)...)

	sealed, err := aead.KcChaCha20Poly1305Encrypt(privateKey, nonceZero, key, associatedData)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to seal private key", err)
	}

	out := make([]byte, 0, len(associatedData)+SaltSize+len(sealed))
	out = append(out, associatedData...)
	out = append(out, salt...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptV2 opens a container produced by EncryptV2. password is zeroized
// before returning. A wrong password and a tampered container produce the
// same Cryptographic error; they are never distinguished publicly.
func DecryptV2(container, password []byte, params Params) ([]byte, error) {
	const op = "keycontainer.DecryptV2"
	defer primitives.Zeroize(password)

	minLen := AlgorithmHeaderSize + VersionSize + SaltSize + aead.CommitmentSize + aead.TagSize
	if len(container) < minLen {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "container too short")
	}

	associatedData := container[:AlgorithmHeaderSize+VersionSize]
	version := decodeVersion(container[AlgorithmHeaderSize : AlgorithmHeaderSize+VersionSize])
	if version != version2 {
		return nil, kerrors.New(kerrors.PolicyViolation, op, "unsupported container version")
	}

	salt := container[AlgorithmHeaderSize+VersionSize : AlgorithmHeaderSize+VersionSize+SaltSize]
	sealed := container[AlgorithmHeaderSize+VersionSize+SaltSize:]

	key := make([]byte, aead.KeySize)
	primitives.Argon2idDerive(key, password, salt, params.Iterations, params.MemoryKiB)
	defer primitives.Zeroize(key)

	privateKey, err := aead.KcChaCha20Poly1305Decrypt(sealed, nonceZero, key, associatedData)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "incorrect password, or tampering", err)
	}
	return privateKey, nil
}

// DecryptV1 opens a legacy container:
// old_header || version1 || salt(16) || nonce(24) || XChaCha20-BLAKE2b(ciphertext||tag).
// V1 is decrypt-only; no new container is ever produced in this format.
// Argon2id iterations are pinned at the historical value of 12.
func DecryptV1(container, password []byte, memoryKiB uint32) ([]byte, error) {
	const op = "keycontainer.DecryptV1"
	defer primitives.Zeroize(password)

	minLen := AlgorithmHeaderSize + VersionSize + SaltSize + aead.XNonceSize + aead.TagSize
	if len(container) < minLen {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "container too short")
	}

	associatedData := container[:AlgorithmHeaderSize+VersionSize]
	version := decodeVersion(container[AlgorithmHeaderSize : AlgorithmHeaderSize+VersionSize])
	if version != version1 {
		return nil, kerrors.New(kerrors.PolicyViolation, op, "unsupported container version")
	}

	offset := AlgorithmHeaderSize + VersionSize
	salt := container[offset : offset+SaltSize]
	offset += SaltSize
	nonce := container[offset : offset+aead.XNonceSize]
	offset += aead.XNonceSize
	sealed := container[offset:]

	key := make([]byte, aead.KeySize)
	primitives.Argon2idDerive(key, password, salt, v1Iterations, memoryKiB)
	defer primitives.Zeroize(key)

	privateKey, err := aead.ChaCha20BLAKE2bDecrypt(sealed, nonce, key, associatedData)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "incorrect password, or tampering", err)
	}
	return privateKey, nil
}

func encodeVersion(v uint32) []byte {
	b := make([]byte, VersionSize)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func decodeVersion(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
