// Package asymmetrickey loads and validates the base64 Curve25519 key files
// this engine accepts for recipient/sender key material. It never performs
// key agreement itself — only length and encoding validation — leaving the surrounding protocol to decide how the validated
// bytes are used.
package asymmetrickey

import (
	"crypto/ecdh"
	"encoding/base64"
	"os"

	"github.com/kryptor-app/kryptor/kerrors"
	"github.com/kryptor-app/kryptor/log"
)

// RawKeyLength is the length of a raw Curve25519 key, public or private.
const RawKeyLength = 32

// EncodedKeyLength is the exact length of a base64-encoded 32-byte key file:
// ceil(32/3)*4 = 44 characters, including one '=' padding character.
const EncodedKeyLength = 44

// LoadPublicKey reads the ASCII-encoded base64 public key at path. On any
// failure — I/O error, wrong length, or bad base64 — it logs a message and returns (nil, false)
// rather than an error, matching the "load-or-none" shape user-facing key
// loading uses throughout this engine.
func LoadPublicKey(path string) ([]byte, bool) {
	raw, ok := loadASCIIKeyFile(path, "asymmetrickey.LoadPublicKey")
	if !ok {
		return nil, false
	}
	key, err := ParsePublicKey(string(raw))
	if err != nil {
		log.Error(err).Messagef("invalid public key file %q", path)
		return nil, false
	}
	return key, true
}

// LoadPrivateKey reads the ASCII-encoded base64 private key at path, with
// the same load-or-none contract as LoadPublicKey.
func LoadPrivateKey(path string) ([]byte, bool) {
	raw, ok := loadASCIIKeyFile(path, "asymmetrickey.LoadPrivateKey")
	if !ok {
		return nil, false
	}
	key, err := parsePrivateKey(string(raw))
	if err != nil {
		log.Error(err).Messagef("invalid private key file %q", path)
		return nil, false
	}
	return key, true
}

func loadASCIIKeyFile(path, op string) ([]byte, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error(kerrors.Wrap(kerrors.IO, op, "unable to read key file", err)).Messagef("unable to read %q", path)
		return nil, false
	}
	if len(raw) != EncodedKeyLength {
		log.Error(kerrors.New(kerrors.InvalidFormat, op, "key file has the wrong length")).Messagef("%q has the wrong length", path)
		return nil, false
	}
	return raw, true
}

// ParsePublicKey base64-decodes chars directly and accepts the result as a
// Curve25519 public key via crypto/ecdh, which checks only its 32-byte
// length; low-order points and points on the twist are not rejected.
func ParsePublicKey(chars string) ([]byte, error) {
	const op = "asymmetrickey.ParsePublicKey"

	raw, err := decode(chars, op)
	if err != nil {
		return nil, err
	}

	if _, err := ecdh.X25519().NewPublicKey(raw); err != nil {
		return nil, kerrors.Wrap(kerrors.InvalidFormat, op, "not a valid curve25519 public key", err)
	}
	return raw, nil
}

func parsePrivateKey(chars string) ([]byte, error) {
	const op = "asymmetrickey.parsePrivateKey"

	raw, err := decode(chars, op)
	if err != nil {
		return nil, err
	}

	if _, err := ecdh.X25519().NewPrivateKey(raw); err != nil {
		return nil, kerrors.Wrap(kerrors.InvalidFormat, op, "not a valid curve25519 private key", err)
	}
	return raw, nil
}

func decode(chars, op string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(chars)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.InvalidFormat, op, "unable to decode base64 key", err)
	}
	if len(raw) != RawKeyLength {
		return nil, kerrors.New(kerrors.InvalidFormat, op, "decoded key has the wrong length")
	}
	return raw, nil
}
