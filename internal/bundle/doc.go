// Package bundle packs a captured browser profile directory into a single
// transferable payload and back.
//
// Encoding zips the directory, optionally seals the archive in an AEAD
// envelope (see cryptox) and computes a SHA-256 checksum over the final
// payload. Decoding reverses the envelope and can extract the archive into a
// fresh profile directory.
package bundle
