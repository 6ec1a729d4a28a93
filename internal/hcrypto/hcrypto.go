// Package hcrypto implements the convergent per-chunk encryption scheme of
// spec §4.3: content, never a random secret, determines every key and
// nonce, so identical plaintext chunks across files and users converge to
// identical ciphertext and storage hash.
//
// Two hash functions are used for two different roles, the same dual-digest
// split the teacher uses in internal/objects.DualDigest (SHA-256 for one
// purpose, BLAKE3 for another): BLAKE3 is the "internal plaintext digest"
// (H_plain) spec §4.3 requires never be exposed as a storage address;
// SHA-256 of the stored bytes remains the one and only addressing hash.
package hcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"

	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

func newSHA256() hash.Hash { return sha256.New() }

// Overhead is the per-chunk ciphertext expansion (Poly1305 tag).
const Overhead = chacha20poly1305.Overhead

const (
	infoRootKey    = "htree-file-root-key-v1"
	infoChunkKey   = "htree-chunk-key-v1"
	infoChunkNonce = "htree-chunk-nonce-v1"
)

// PlainDigest computes the internal plaintext digest H_plain(P). It MUST
// NEVER be used as, or exposed as, a blob's storage hash.
func PlainDigest(plaintext []byte) [32]byte {
	return blake3.Sum256(plaintext)
}

// FingerprintHasher accumulates the per-chunk plaintext digests of a file,
// in chunk order, into a single streaming fingerprint FP. It never buffers
// more than one running BLAKE3 state, so it composes with a streaming
// chunker that never holds the whole file in memory.
type FingerprintHasher struct {
	h *blake3.Hasher
}

// NewFingerprintHasher starts a new streaming fingerprint accumulation.
func NewFingerprintHasher() *FingerprintHasher {
	return &FingerprintHasher{h: blake3.New(32, nil)}
}

// AddChunk folds one chunk's plaintext digest into the running fingerprint.
func (f *FingerprintHasher) AddChunk(chunkPlainDigest [32]byte) {
	f.h.Write(chunkPlainDigest[:])
}

// Finish finalizes the fingerprint FP over all chunks seen so far.
func (f *FingerprintHasher) Finish() [32]byte {
	var out [32]byte
	copy(out[:], f.h.Sum(nil))
	return out
}

// DeriveRootKey derives the file's single persisted root key K_root from
// its content fingerprint FP. Identical file content, regardless of who
// builds it or when, yields the identical K_root.
func DeriveRootKey(fingerprint [32]byte) [32]byte {
	return hkdfExpand32(fingerprint[:], infoRootKey)
}

// DeriveChunkKey derives the ephemeral per-chunk AEAD key for ordinal i
// from the file's root key. Chunk keys are never stored individually.
func DeriveChunkKey(rootKey [32]byte, ordinal uint64) [32]byte {
	return hkdfExpand32(rootKey[:], fmt.Sprintf("%s|%d", infoChunkKey, ordinal))
}

// DeriveChunkNonce derives the per-chunk AEAD nonce for ordinal i from the
// file's root key.
func DeriveChunkNonce(rootKey [32]byte, ordinal uint64) [chacha20poly1305.NonceSize]byte {
	full := hkdfExpand32(rootKey[:], fmt.Sprintf("%s|%d", infoChunkNonce, ordinal))
	var nonce [chacha20poly1305.NonceSize]byte
	copy(nonce[:], full[:chacha20poly1305.NonceSize])
	return nonce
}

func hkdfExpand32(secret []byte, info string) [32]byte {
	r := hkdf.Expand(newSHA256, secret, []byte(info))
	var out [32]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// hkdf.Expand only fails this way if asked for too much output,
		// which 32 bytes never triggers; a panic here means a programmer
		// error in the info-string accounting above, not bad input.
		panic(fmt.Sprintf("hcrypto: hkdf expand: %v", err))
	}
	return out
}

// EncryptChunk seals plaintext under (key, nonce) derived for this chunk.
func EncryptChunk(key [32]byte, nonce [chacha20poly1305.NonceSize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, herrors.New("hcrypto.EncryptChunk", herrors.Io, err)
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// DecryptChunk opens ciphertext under (key, nonce). Authentication failure
// (wrong key, tampered bytes) is reported as herrors.InvalidContent.
func DecryptChunk(key [32]byte, nonce [chacha20poly1305.NonceSize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, herrors.New("hcrypto.DecryptChunk", herrors.Io, err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, herrors.New("hcrypto.DecryptChunk", herrors.InvalidContent, err)
	}
	return plaintext, nil
}

// EncryptedSize reports the ciphertext length for a plain_len-byte chunk.
func EncryptedSize(plainLen uint64) uint64 {
	return plainLen + Overhead
}

// PlaintextSize reports the plaintext length for a cipher_len-byte chunk.
// It returns an error if cipherLen is too small to have ever held a tag.
func PlaintextSize(cipherLen uint64) (uint64, error) {
	if cipherLen < Overhead {
		return 0, herrors.New("hcrypto.PlaintextSize", herrors.InvalidArgument,
			fmt.Errorf("cipher length %d smaller than AEAD overhead %d", cipherLen, Overhead))
	}
	return cipherLen - Overhead, nil
}

// CouldBeEncrypted is a cheap heuristic used only to decide whether to try
// decrypting unlabelled bytes before serving them raw. It is NEVER a
// security decision: a positive result does not mean the bytes decrypt
// correctly under any particular key, and a negative result does not mean
// the bytes aren't ciphertext.
func CouldBeEncrypted(b []byte) bool {
	return len(b) >= Overhead
}

// GenerateRandomKey returns a fresh random 32-byte key, for callers that
// explicitly opt out of convergent (content-derived) keying.
func GenerateRandomKey() ([32]byte, error) {
	var k [32]byte
	if _, err := rand.Read(k[:]); err != nil {
		return k, herrors.New("hcrypto.GenerateRandomKey", herrors.Io, err)
	}
	return k, nil
}

// DeriveSharedKey implements the supplemented TreeVisibility/xor_keys
// feature from the original Rust source: a second key, derived by XORing a
// recipient secret into the file's root key, letting a root be published
// under one key for owners and a different, independently-computable key
// for a specific share grant — without re-encrypting any chunk.
func DeriveSharedKey(rootKey [32]byte, recipientSecret htypes.Hash) [32]byte {
	var xored [32]byte
	for i := range xored {
		xored[i] = rootKey[i] ^ recipientSecret[i]
	}
	return blake3.Sum256(xored[:])
}
