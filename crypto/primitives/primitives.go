// Package primitives is the narrow façade the rest of this module builds on:
// ChaCha20 keystream generation, BLAKE2b hashing/keying/derivation, Argon2id,
// Poly1305, constant-time comparison and counter increment, secure random,
// and explicit zeroization. Nothing above this package touches
// golang.org/x/crypto directly.
package primitives

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"

	"github.com/kryptor-app/kryptor/generator/randomness"
)

// RandomFill fills buf with cryptographically secure random bytes.
func RandomFill(buf []byte) error {
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Errorf("unable to fill buffer with random bytes: %w", err)
	}
	return nil
}

// RandomBytes returns a new slice of n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := RandomFill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomFilenameChars returns a random string of n characters drawn from the
// 62-character alphanumeric alphabet, suitable for a generated keyfile name.
// It defers to generator/randomness.Alphanumeric for unbiased sampling
// (rand.Int against the alphabet size, not a modulo-reduced byte).
func RandomFilenameChars(n int) (string, error) {
	s, err := randomness.Alphanumeric(n)
	if err != nil {
		return "", fmt.Errorf("unable to generate random filename characters: %w", err)
	}
	return s, nil
}

// Blake2bHash returns the unkeyed BLAKE2b digest of msg, truncated/extended
// to outLen bytes (1..64).
func Blake2bHash(msg []byte, outLen int) ([]byte, error) {
	h, err := blake2b.New(outLen, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize blake2b hasher: %w", err)
	}
	if _, err := h.Write(msg); err != nil {
		return nil, fmt.Errorf("unable to hash message: %w", err)
	}
	return h.Sum(nil), nil
}

// Blake2bHashStream hashes everything read from r, unkeyed, producing an
// outLen-byte digest. Used to hash large keyfiles without buffering them.
func Blake2bHashStream(r io.Reader, outLen int) ([]byte, error) {
	h, err := blake2b.New(outLen, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize blake2b hasher: %w", err)
	}
	if _, err := io.Copy(h, r); err != nil {
		return nil, fmt.Errorf("unable to hash stream: %w", err)
	}
	return h.Sum(nil), nil
}

// NewBlake2bHasher returns an unkeyed BLAKE2b hash.Hash producing outLen
// bytes, so a caller can stream arbitrarily large input into it (a capped
// io.Copy over a keyfile, for instance) without buffering the whole input
// in memory the way Blake2bHash does.
func NewBlake2bHasher(outLen int) (hash.Hash, error) {
	h, err := blake2b.New(outLen, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize blake2b hasher: %w", err)
	}
	return h, nil
}

// Blake2bKeyed returns the keyed BLAKE2b MAC of msg under key, outLen bytes
// long (1..64). key must be 1..64 bytes.
func Blake2bKeyed(msg, key []byte, outLen int) ([]byte, error) {
	h, err := blake2b.New(outLen, key)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize keyed blake2b hasher: %w", err)
	}
	if _, err := h.Write(msg); err != nil {
		return nil, fmt.Errorf("unable to mac message: %w", err)
	}
	return h.Sum(nil), nil
}

// Blake2bKeyDerivation derives outLen bytes of key material from ikm, domain
// separated by personal and bound to salt, using BLAKE2b's extensible output
// mode keyed with ikm. The AEAD constructions in crypto/aead do not use it;
// they split a (key, nonce) pair into commitment/MAC/encryption keys with
// ChaCha20Keystream.
func Blake2bKeyDerivation(ikm, salt, personal []byte, outLen int) ([]byte, error) {
	xof, err := blake2b.NewXOF(uint32(outLen), ikm)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize blake2b xof: %w", err)
	}
	if _, err := xof.Write(personal); err != nil {
		return nil, fmt.Errorf("unable to write domain separator: %w", err)
	}
	if _, err := xof.Write(salt); err != nil {
		return nil, fmt.Errorf("unable to write salt: %w", err)
	}
	out := make([]byte, outLen)
	if _, err := io.ReadFull(xof, out); err != nil {
		return nil, fmt.Errorf("unable to read derived key material: %w", err)
	}
	return out, nil
}

// Argon2idDerive derives a key of len(outKey) bytes from password and salt
// using Argon2id with the given iteration count and memory (KiB).
// Parallelism is pinned to 1 so derivation is reproducible across machines,
// matching the single-threaded resource model this engine runs under.
func Argon2idDerive(outKey, password, salt []byte, iterations, memoryKiB uint32) {
	derived := argon2.IDKey(password, salt, iterations, memoryKiB, 1, uint32(len(outKey)))
	copy(outKey, derived)
	Zeroize(derived)
}

// ChaCha20Keystream fills out with the ChaCha20 keystream under key and
// nonce, starting at the given block counter. len(nonce) selects the
// variant: 12 bytes for ChaCha20, 24 bytes for XChaCha20 (handled
// transparently by golang.org/x/crypto/chacha20).
func ChaCha20Keystream(out, nonce, key []byte, counter uint32) error {
	cipher, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return fmt.Errorf("unable to initialize chacha20 cipher: %w", err)
	}
	cipher.SetCounter(counter)
	for i := range out {
		out[i] = 0
	}
	cipher.XORKeyStream(out, out)
	return nil
}

// ChaCha20XOR encrypts (or decrypts, being an XOR stream) src into dst under
// key and nonce, starting at the given block counter.
func ChaCha20XOR(dst, src, nonce, key []byte, counter uint32) error {
	cipher, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return fmt.Errorf("unable to initialize chacha20 cipher: %w", err)
	}
	cipher.SetCounter(counter)
	cipher.XORKeyStream(dst, src)
	return nil
}

// Poly1305Tag computes the standard one-time Poly1305 MAC of msg under a
// 32-byte key.
func Poly1305Tag(msg, key []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("poly1305 key must be 32 bytes, got %d", len(key))
	}
	var k [32]byte
	copy(k[:], key)
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, msg, &k)
	Zeroize(k[:])
	return tag[:], nil
}

// ConstantTimeEqual reports whether a and b are equal, in time independent
// of where they first differ. Unequal lengths compare unequal.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeIncrementLE increments buf, interpreted as an unsigned
// little-endian integer, by one, without data-dependent branching on the
// carry. Used to advance per-block nonces.
func ConstantTimeIncrementLE(buf []byte) {
	carry := byte(1)
	for i := range buf {
		sum := uint16(buf[i]) + uint16(carry)
		buf[i] = byte(sum)
		carry = byte(sum >> 8)
	}
}

// Zeroize overwrites buf with zeros. It is a thin wrapper over
// memguard.WipeBytes so every secret-wiping call site in this module shares
// one implementation and one audit point.
func Zeroize(buf []byte) {
	memguard.WipeBytes(buf)
}
