package stream

import (
	"io"
	"path/filepath"

	"github.com/kryptor-app/kryptor/crypto/fileheader"
	"github.com/kryptor-app/kryptor/ioutil/filepolicy"
	"github.com/kryptor-app/kryptor/kerrors"
)

// EncryptFile encrypts the file at inputPath into outputPath using
// filepath.Base(inputPath) as the encoded file name. overwriteOutput
// controls whether an existing file at outputPath is replaced.
//
// startNonce and unencryptedHeaders are supplied by the caller rather than
// generated here: recovering the starting nonce at decrypt time is a
// protocol-level concern this package takes no position on (the nonce is
// typically embedded in, or derivable from, unencryptedHeaders by whatever
// wraps this package — a symmetric or asymmetric key-exchange layer), so
// the same value the caller will later hand to DecryptFile must be threaded
// through by that caller.
//
// After a successful encryption, if opts.Overwrite is set the input file is
// overwritten with random bytes of its own length and deleted, matching the
// "overwrite input" disposal policy; the output file is then flagged
// read-only. On any failure, partial output is discarded and the input is
// left untouched.
func EncryptFile(inputPath, outputPath string, overwriteOutput bool, startNonce, headerKey, unencryptedHeaders []byte, opts Options) error {
	const op = "stream.EncryptFile"

	in, err := filepolicy.OpenForRead(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return kerrors.Wrap(kerrors.IO, op, "unable to stat input file", err)
	}

	out, err := filepolicy.CreateOutput(outputPath, overwriteOutput)
	if err != nil {
		return err
	}

	fileName := filepath.Base(inputPath)
	if err := Encrypt(out, in, fi.Size(), startNonce, headerKey, unencryptedHeaders, fileName, fi.IsDir(), opts); err != nil {
		_ = out.Abort()
		return err
	}

	if err := out.Commit(); err != nil {
		return err
	}

	if opts.Overwrite {
		if err := filepolicy.OverwriteAndDelete(inputPath); err != nil {
			return kerrors.Wrap(kerrors.IO, op, "unable to dispose of input file", err)
		}
	}

	if err := filepolicy.MarkReadOnly(outputPath); err != nil {
		return err
	}

	return nil
}

// DecryptFile decrypts the file at inputPath into outputPath. startNonce and
// unencryptedHeaders must be exactly the values used by the matching
// EncryptFile call; neither is recovered from the file itself. ciphertextLength
// is derived from the input file's size: a file too small to hold a header,
// or whose remaining length is not a whole number of chunks, is rejected as
// InvalidFormat, and a file truncated or padded by whole chunks is rejected
// by the header's own AEAD tag.
//
// On any failure, partially written output is deleted before returning.
func DecryptFile(inputPath, outputPath string, overwriteOutput bool, startNonce, headerKey, unencryptedHeaders []byte) (fileheader.Header, error) {
	const op = "stream.DecryptFile"

	in, err := filepolicy.OpenForRead(inputPath)
	if err != nil {
		return fileheader.Header{}, err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return fileheader.Header{}, kerrors.Wrap(kerrors.IO, op, "unable to stat input file", err)
	}

	overhead := int64(len(unencryptedHeaders)) + int64(fileheader.EncryptedHeaderLength)
	if fi.Size() < overhead {
		return fileheader.Header{}, kerrors.New(kerrors.InvalidFormat, op, "input file is too small to contain a header")
	}
	ciphertextLength := uint64(fi.Size() - overhead)

	if len(unencryptedHeaders) > 0 {
		if _, err := io.CopyN(io.Discard, in, int64(len(unencryptedHeaders))); err != nil {
			return fileheader.Header{}, kerrors.Wrap(kerrors.IO, op, "unable to skip unencrypted headers", err)
		}
	}

	out, err := filepolicy.CreateOutput(outputPath, overwriteOutput)
	if err != nil {
		return fileheader.Header{}, err
	}

	header, err := Decrypt(out, in, ciphertextLength, startNonce, headerKey, unencryptedHeaders)
	if err != nil {
		_ = out.Abort()
		return fileheader.Header{}, err
	}

	if err := out.Commit(); err != nil {
		return fileheader.Header{}, err
	}

	return header, nil
}
