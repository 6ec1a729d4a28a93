// Package codec implements the canonical encoding of htypes.TreeNode and
// the SHA-256 addressing used throughout hashtree.
//
// The wire shape generalizes two encodings from the teacher repo:
// filechunk.go's leaf/internal framing (tag byte + uvarint-length fields)
// and fsmerkle's sorted-entry tree framing (uvarint count + per-entry
// mode/name/kind/hash). Unlike either of those, node bytes are prefixed
// with a 4-byte magic rather than a single tag byte: a leaf chunk that
// happens to start with 0x00 or 0x01 would otherwise be misread as a node,
// which is exactly the ambiguity spec §3.2 invariant 2 and §9 rule out.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/htreeio/hashtree/internal/htypes"
)

// magic is the 4-byte canonical-node prefix: "HTN" + format version 1.
var magic = [4]byte{0x48, 0x54, 0x4e, 0x01}

// CodecError reports a structural decode failure; callers treat it as
// herrors.Corrupt when a node was required, or ignore it when probing
// arbitrary leaf bytes via TryDecodeTreeNode.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string { return "codec: " + e.Reason }

// Sha256 hashes b, producing the storage address for on-disk bytes.
func Sha256(b []byte) htypes.Hash {
	return htypes.Hash(sha256.Sum256(b))
}

// EncodeAndHash encodes node and returns both the canonical bytes and their hash.
func EncodeAndHash(node htypes.TreeNode) ([]byte, htypes.Hash) {
	b := EncodeTreeNode(node)
	return b, Sha256(b)
}

// EncodeTreeNode produces the canonical byte representation of node.
// encode(decode(x)) == x for every value produced by this function.
func EncodeTreeNode(node htypes.TreeNode) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(byte(node.LinkType))
	writeUvarint(&buf, node.Size)
	writeUvarint(&buf, uint64(len(node.Links)))
	for _, l := range node.Links {
		buf.Write(l.Hash[:])
		buf.WriteByte(byte(l.LinkType))
		writeUvarint(&buf, l.Size)
		nameBytes := []byte(l.Name)
		writeUvarint(&buf, uint64(len(nameBytes)))
		buf.Write(nameBytes)
		if l.Key != nil {
			buf.WriteByte(1)
			buf.Write(l.Key[:])
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// IsTreeNode is the cheap heuristic check: does b carry the canonical magic
// prefix? It never fully parses the payload, so callers wanting a
// guaranteed-valid TreeNode should follow up with TryDecodeTreeNode.
func IsTreeNode(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic[:])
}

// IsDirectoryNode reports whether b decodes to a TreeNode with LinkType Dir.
func IsDirectoryNode(b []byte) bool {
	node, ok := TryDecodeTreeNode(b)
	return ok && node.LinkType == htypes.LinkDir
}

// GetNodeType returns the node's LinkType and true if b decodes as a node.
func GetNodeType(b []byte) (htypes.LinkType, bool) {
	node, ok := TryDecodeTreeNode(b)
	if !ok {
		return 0, false
	}
	return node.LinkType, true
}

// TryDecodeTreeNode attempts to parse b as a canonical TreeNode. It is a
// total function: malformed input yields (zero, false), never a panic or
// error — this is how leaf blobs are told apart from tree nodes.
func TryDecodeTreeNode(b []byte) (htypes.TreeNode, bool) {
	node, err := DecodeTreeNode(b)
	if err != nil {
		return htypes.TreeNode{}, false
	}
	return node, true
}

// DecodeTreeNode parses b as a canonical TreeNode, returning a CodecError
// describing the first structural problem found.
func DecodeTreeNode(b []byte) (htypes.TreeNode, error) {
	if !IsTreeNode(b) {
		return htypes.TreeNode{}, &CodecError{Reason: "missing magic prefix"}
	}
	r := bytes.NewReader(b[4:])

	ltByte, err := r.ReadByte()
	if err != nil {
		return htypes.TreeNode{}, &CodecError{Reason: "missing link_type"}
	}
	lt := htypes.LinkType(ltByte)
	if lt != htypes.LinkBlob && lt != htypes.LinkFile && lt != htypes.LinkDir {
		return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("invalid link_type %d", ltByte)}
	}

	size, err := binary.ReadUvarint(r)
	if err != nil {
		return htypes.TreeNode{}, &CodecError{Reason: "missing size"}
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return htypes.TreeNode{}, &CodecError{Reason: "missing link_count"}
	}
	// Guard against a corrupt/adversarial count forcing a huge allocation.
	if count > uint64(r.Len()) {
		return htypes.TreeNode{}, &CodecError{Reason: "link_count exceeds remaining bytes"}
	}

	links := make([]htypes.Link, 0, count)
	for i := uint64(0); i < count; i++ {
		var link htypes.Link
		if _, err := readFull(r, link.Hash[:]); err != nil {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: hash: %v", i, err)}
		}
		ckByte, err := r.ReadByte()
		if err != nil {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: missing link_type", i)}
		}
		link.LinkType = htypes.LinkType(ckByte)
		if link.LinkType != htypes.LinkBlob && link.LinkType != htypes.LinkFile && link.LinkType != htypes.LinkDir {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: invalid link_type %d", i, ckByte)}
		}
		link.Size, err = binary.ReadUvarint(r)
		if err != nil {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: missing size", i)}
		}
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: missing name_len", i)}
		}
		if nameLen > uint64(r.Len()) {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: name_len exceeds remaining bytes", i)}
		}
		if nameLen > 0 {
			nameBytes := make([]byte, nameLen)
			if _, err := readFull(r, nameBytes); err != nil {
				return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: name: %v", i, err)}
			}
			link.Name = string(nameBytes)
		}
		hasKey, err := r.ReadByte()
		if err != nil {
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: missing has_key", i)}
		}
		switch hasKey {
		case 0:
		case 1:
			var key [32]byte
			if _, err := readFull(r, key[:]); err != nil {
				return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: key: %v", i, err)}
			}
			link.Key = &key
		default:
			return htypes.TreeNode{}, &CodecError{Reason: fmt.Sprintf("link %d: invalid has_key %d", i, hasKey)}
		}
		links = append(links, link)
	}

	if r.Len() != 0 {
		return htypes.TreeNode{}, &CodecError{Reason: "trailing bytes after last link"}
	}

	return htypes.TreeNode{LinkType: lt, Size: size, Links: links}, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
		if k == 0 {
			return n, &CodecError{Reason: "unexpected end of data"}
		}
	}
	return n, nil
}
