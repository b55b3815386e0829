package kerrors_test

import (
	"errors"
	"testing"

	"github.com/kryptor-app/kryptor/kerrors"
	"github.com/stretchr/testify/require"
)

func TestError_Kind(t *testing.T) {
	t.Parallel()

	cause := errors.New("tag mismatch")
	err := kerrors.Wrap(kerrors.Cryptographic, "aead.Decrypt", "incorrect password, or tampering", cause)

	require.True(t, kerrors.Is(err, kerrors.Cryptographic))
	require.False(t, kerrors.Is(err, kerrors.IO))
	require.Equal(t, kerrors.Cryptographic, kerrors.KindOf(err))
	require.ErrorIs(t, err, cause)
}

func TestNew_NoCause(t *testing.T) {
	t.Parallel()

	err := kerrors.New(kerrors.InvalidFormat, "fileheader.Decode", "bad magic number")
	require.True(t, kerrors.Is(err, kerrors.InvalidFormat))
	require.Contains(t, err.Error(), "bad magic number")
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	require.NoError(t, kerrors.Wrap(kerrors.IO, "op", "msg", nil))
}

func TestKindOf_PlainError(t *testing.T) {
	t.Parallel()

	require.Equal(t, kerrors.Unknown, kerrors.KindOf(errors.New("plain")))
}
