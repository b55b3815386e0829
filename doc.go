// Package kryptor provides the core cryptographic engine behind the Kryptor
// file encryption and signing utility.
//
// It implements the chunked authenticated-encryption streaming layout, the
// encrypted file-header format, the password-protected private-key
// container, and the symmetric/asymmetric key-material validation pipeline.
//
// The command-line parser, update checker, console messaging and directory
// traversal live outside this module; this package only consumes paths and
// key material and emits bytes back.
package kryptor
