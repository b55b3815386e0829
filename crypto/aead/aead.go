// Package aead implements the two AEAD constructions this engine layers over
// crypto/primitives: kcChaCha20Poly1305, which binds an explicit 32-byte
// key-commitment tag to its output, and ChaCha20BLAKE2b, a plain
// encrypt-then-MAC construction used for the file header and for each data
// chunk where commitment is not required.
package aead

import (
	"encoding/binary"

	"github.com/kryptor-app/kryptor/crypto/primitives"
	"github.com/kryptor-app/kryptor/kerrors"
)

const (
	// KeySize is the ChaCha20 key length accepted by both constructions.
	KeySize = 32
	// NonceSize is the ChaCha20 nonce length.
	NonceSize = 12
	// XNonceSize is the XChaCha20 nonce length, accepted only by
	// ChaCha20BLAKE2b for decrypting the legacy V1 private-key container.
	XNonceSize = 24
	// TagSize is the MAC length both constructions append.
	TagSize = 16
	// CommitmentSize is the length of the key-commitment prefix
	// kcChaCha20Poly1305 emits ahead of its ciphertext.
	CommitmentSize = 32

	// derivedKeyMaterialLen is commitment(32) || poly_key(32) || enc_key(32).
	derivedKeyMaterialLen = CommitmentSize + 32 + 32
	// blake2bKeyMaterialLen is mac_key(32) || enc_key(32).
	blake2bKeyMaterialLen = 32 + 32
)

// pad16 returns the number of zero bytes needed to round n up to a multiple
// of 16, matching the classic ChaCha20-Poly1305 AEAD construction.
func pad16(n int) int {
	rem := n % 16
	if rem == 0 {
		return 0
	}
	return 16 - rem
}

// lenBlock returns an 8-byte little-endian encoding of n, as used by the
// trailing length fields of the Poly1305 padded construction.
func lenBlock(n int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(n))
	return b
}

// KcChaCha20Poly1305Encrypt seals plaintext under (key, nonce), binding aad,
// and returns commitment || ciphertext || tag.
//
// It derives 96 bytes of ChaCha20 keystream at block counter 0 from (key,
// nonce) and splits it into a 32-byte commitment, a 32-byte Poly1305 key and
// a 32-byte encryption key; the plaintext is then encrypted with ChaCha20
// under the encryption key starting at block counter 1, and a Poly1305 tag
// is computed over the standard padded AEAD construction.
func KcChaCha20Poly1305Encrypt(plaintext, nonce, key, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, kerrors.New(kerrors.Cryptographic, "aead.KcChaCha20Poly1305Encrypt", "key must be 32 bytes")
	}
	if len(nonce) != NonceSize {
		return nil, kerrors.New(kerrors.Cryptographic, "aead.KcChaCha20Poly1305Encrypt", "nonce must be 12 bytes")
	}

	derived := make([]byte, derivedKeyMaterialLen)
	if err := primitives.ChaCha20Keystream(derived, nonce, key, 0); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, "aead.KcChaCha20Poly1305Encrypt", "unable to derive key material", err)
	}
	defer primitives.Zeroize(derived)

	commitment := derived[:CommitmentSize]
	polyKey := derived[CommitmentSize : CommitmentSize+32]
	encKey := derived[CommitmentSize+32:]

	ciphertext := make([]byte, len(plaintext))
	if err := primitives.ChaCha20XOR(ciphertext, plaintext, nonce, encKey, 1); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, "aead.KcChaCha20Poly1305Encrypt", "unable to encrypt plaintext", err)
	}

	tag, err := poly1305Tag(polyKey, aad, ciphertext)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, "aead.KcChaCha20Poly1305Encrypt", "unable to compute tag", err)
	}

	out := make([]byte, 0, CommitmentSize+len(ciphertext)+TagSize)
	out = append(out, commitment...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// KcChaCha20Poly1305Decrypt opens a blob produced by
// KcChaCha20Poly1305Encrypt. The commitment is checked in constant time
// before the Poly1305 tag is even computed, so a tampered key is rejected at
// the cheaper check first. Both a wrong key/nonce and a tampered ciphertext
// produce the same Cryptographic error.
func KcChaCha20Poly1305Decrypt(sealed, nonce, key, aad []byte) ([]byte, error) {
	const op = "aead.KcChaCha20Poly1305Decrypt"
	if len(key) != KeySize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "key must be 32 bytes")
	}
	if len(nonce) != NonceSize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "nonce must be 12 bytes")
	}
	if len(sealed) < CommitmentSize+TagSize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "sealed input too short")
	}

	givenCommitment := sealed[:CommitmentSize]
	ciphertext := sealed[CommitmentSize : len(sealed)-TagSize]
	givenTag := sealed[len(sealed)-TagSize:]

	derived := make([]byte, derivedKeyMaterialLen)
	if err := primitives.ChaCha20Keystream(derived, nonce, key, 0); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to derive key material", err)
	}
	defer primitives.Zeroize(derived)

	commitment := derived[:CommitmentSize]
	polyKey := derived[CommitmentSize : CommitmentSize+32]
	encKey := derived[CommitmentSize+32:]

	if !primitives.ConstantTimeEqual(commitment, givenCommitment) {
		return nil, kerrors.New(kerrors.Cryptographic, op, "incorrect password, or tampering")
	}

	tag, err := poly1305Tag(polyKey, aad, ciphertext)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to compute tag", err)
	}
	if !primitives.ConstantTimeEqual(tag, givenTag) {
		return nil, kerrors.New(kerrors.Cryptographic, op, "incorrect password, or tampering")
	}

	plaintext := make([]byte, len(ciphertext))
	if err := primitives.ChaCha20XOR(plaintext, ciphertext, nonce, encKey, 1); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to decrypt ciphertext", err)
	}
	return plaintext, nil
}

// poly1305Tag computes the standard AEAD construction:
// AAD || pad16 || ciphertext || pad16 || len64(AAD) || len64(ciphertext).
func poly1305Tag(polyKey, aad, ciphertext []byte) ([]byte, error) {
	msg := make([]byte, 0, len(aad)+pad16(len(aad))+len(ciphertext)+pad16(len(ciphertext))+16)
	msg = append(msg, aad...)
	msg = append(msg, make([]byte, pad16(len(aad)))...)
	msg = append(msg, ciphertext...)
	msg = append(msg, make([]byte, pad16(len(ciphertext)))...)
	msg = append(msg, lenBlock(len(aad))...)
	msg = append(msg, lenBlock(len(ciphertext))...)
	return primitives.Poly1305Tag(msg, polyKey)
}

// ChaCha20BLAKE2bEncrypt seals plaintext under (key, nonce), binding aad, and
// returns ciphertext || tag. Unlike KcChaCha20Poly1305Encrypt it carries no
// key-commitment prefix.
func ChaCha20BLAKE2bEncrypt(plaintext, nonce, key, aad []byte) ([]byte, error) {
	const op = "aead.ChaCha20BLAKE2bEncrypt"
	if len(key) != KeySize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "key must be 32 bytes")
	}
	if len(nonce) != NonceSize && len(nonce) != XNonceSize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "nonce must be 12 or 24 bytes")
	}

	derived := make([]byte, blake2bKeyMaterialLen)
	if err := primitives.ChaCha20Keystream(derived, nonce, key, 0); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to derive key material", err)
	}
	defer primitives.Zeroize(derived)

	macKey := derived[:32]
	encKey := derived[32:]

	ciphertext := make([]byte, len(plaintext))
	if err := primitives.ChaCha20XOR(ciphertext, plaintext, nonce, encKey, 1); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to encrypt plaintext", err)
	}

	tag, err := blake2bTag(macKey, aad, ciphertext)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to compute tag", err)
	}

	out := make([]byte, 0, len(ciphertext)+TagSize)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// ChaCha20BLAKE2bDecrypt opens a blob produced by ChaCha20BLAKE2bEncrypt. A
// wrong key/nonce and a tampered ciphertext both produce the same
// Cryptographic error.
func ChaCha20BLAKE2bDecrypt(sealed, nonce, key, aad []byte) ([]byte, error) {
	const op = "aead.ChaCha20BLAKE2bDecrypt"
	if len(key) != KeySize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "key must be 32 bytes")
	}
	if len(nonce) != NonceSize && len(nonce) != XNonceSize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "nonce must be 12 or 24 bytes")
	}
	if len(sealed) < TagSize {
		return nil, kerrors.New(kerrors.Cryptographic, op, "sealed input too short")
	}

	ciphertext := sealed[:len(sealed)-TagSize]
	givenTag := sealed[len(sealed)-TagSize:]

	derived := make([]byte, blake2bKeyMaterialLen)
	if err := primitives.ChaCha20Keystream(derived, nonce, key, 0); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to derive key material", err)
	}
	defer primitives.Zeroize(derived)

	macKey := derived[:32]
	encKey := derived[32:]

	tag, err := blake2bTag(macKey, aad, ciphertext)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to compute tag", err)
	}
	if !primitives.ConstantTimeEqual(tag, givenTag) {
		return nil, kerrors.New(kerrors.Cryptographic, op, "incorrect password, or tampering")
	}

	plaintext := make([]byte, len(ciphertext))
	if err := primitives.ChaCha20XOR(plaintext, ciphertext, nonce, encKey, 1); err != nil {
		return nil, kerrors.Wrap(kerrors.Cryptographic, op, "unable to decrypt ciphertext", err)
	}
	return plaintext, nil
}

// blake2bTag computes a keyed BLAKE2b-128 MAC over
// aad || ciphertext || len64(len(aad)) || len64(len(ciphertext)),
// the same length-bound shape as the Poly1305 construction above, adapted to
// a hash that does not require block-aligned padding.
func blake2bTag(macKey, aad, ciphertext []byte) ([]byte, error) {
	msg := make([]byte, 0, len(aad)+len(ciphertext)+16)
	msg = append(msg, aad...)
	msg = append(msg, ciphertext...)
	msg = append(msg, lenBlock(len(aad))...)
	msg = append(msg, lenBlock(len(ciphertext))...)
	return primitives.Blake2bKeyed(msg, macKey, TagSize)
}
