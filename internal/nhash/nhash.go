// Package nhash implements the "nhash" permalink codec: a TLV payload
// (hash, optional decryption key, tolerated-legacy path) wrapped in a
// bech32 envelope, human-readable prefix "nhash".
//
// The TLV framing follows the original hashtree-core/src/nhash.rs design
// directly (type/length/value, single-byte length, ascending type-id sort
// before encoding). The bit-grouping bech32 needs (8-bit bytes packed into
// 5-bit groups) is delegated to github.com/btcsuite/btcutil/bech32 rather
// than hand-rolled — the teacher's own stack carries no bech32 codec, but
// ethereum-go-ethereum (elsewhere in this retrieval pack) already depends
// on btcutil for exactly this kind of bit-twiddling.
package nhash

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

const (
	hrp = "nhash"

	tlvHash       = 0
	tlvPath       = 4 // legacy; decode-only
	tlvDecryptKey = 5
)

// Data is the decoded content of a permalink.
type Data struct {
	Hash       htypes.Hash
	DecryptKey *[32]byte
}

type tlvEntry struct {
	typ   byte
	value []byte
}

// Encode renders d as an "nhash1..." permalink. The legacy path TLV is
// never emitted.
func Encode(d Data) (string, error) {
	entries := []tlvEntry{{typ: tlvHash, value: d.Hash[:]}}
	if d.DecryptKey != nil {
		entries = append(entries, tlvEntry{typ: tlvDecryptKey, value: d.DecryptKey[:]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].typ < entries[j].typ })

	var payload []byte
	for _, e := range entries {
		if len(e.value) > 255 {
			return "", herrors.New("nhash.Encode", herrors.InvalidArgument,
				fmt.Errorf("TLV type %d value too long: %d bytes", e.typ, len(e.value)))
		}
		payload = append(payload, e.typ, byte(len(e.value)))
		payload = append(payload, e.value...)
	}

	words, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", herrors.New("nhash.Encode", herrors.InvalidArgument, err)
	}
	s, err := bech32.Encode(hrp, words)
	if err != nil {
		return "", herrors.New("nhash.Encode", herrors.InvalidArgument, err)
	}
	return s, nil
}

// Decode parses an "nhash1..." permalink. A legacy path TLV, if present, is
// accepted and ignored; it never influences the returned Data.
func Decode(s string) (Data, error) {
	gotHRP, words, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument, err)
	}
	if gotHRP != hrp {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument,
			fmt.Errorf("invalid prefix: expected %q, got %q", hrp, gotHRP))
	}
	payload, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument, err)
	}

	tlv, err := parseTLV(payload)
	if err != nil {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument, err)
	}

	hashVals, ok := tlv[tlvHash]
	if !ok || len(hashVals) != 1 {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument,
			fmt.Errorf("missing required field: hash"))
	}
	if len(hashVals[0]) != 32 {
		return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument,
			fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(hashVals[0])))
	}
	var d Data
	copy(d.Hash[:], hashVals[0])

	if keyVals, ok := tlv[tlvDecryptKey]; ok {
		if len(keyVals) != 1 || len(keyVals[0]) != 32 {
			return Data{}, herrors.New("nhash.Decode", herrors.InvalidArgument,
				fmt.Errorf("invalid key length"))
		}
		var key [32]byte
		copy(key[:], keyVals[0])
		d.DecryptKey = &key
	}

	// tlvPath entries, if present, are intentionally dropped here.
	return d, nil
}

// IsNHash reports whether s looks like an nhash permalink (cheap prefix check).
func IsNHash(s string) bool {
	return len(s) > len(hrp)+1 && s[:len(hrp)+1] == hrp+"1"
}

func parseTLV(data []byte) (map[byte][][]byte, error) {
	result := make(map[byte][][]byte)
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("TLV error: unexpected end of data")
		}
		t := data[offset]
		l := int(data[offset+1])
		offset += 2
		if offset+l > len(data) {
			return nil, fmt.Errorf("TLV error: not enough data for type %d, need %d bytes", t, l)
		}
		v := make([]byte, l)
		copy(v, data[offset:offset+l])
		offset += l
		result[t] = append(result[t], v)
	}
	return result, nil
}
