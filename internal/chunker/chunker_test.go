package chunker

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/store"
	"github.com/htreeio/hashtree/internal/treereader"
)

func TestBuildBytesSingleChunkUnencrypted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 1024, MaxLinks: 4}}

	data := []byte("small file, one chunk")
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	if result.ChunkCount != 1 {
		t.Fatalf("expected 1 chunk, got %d", result.ChunkCount)
	}

	reader := treereader.New(s)
	got, err := reader.Get(ctx, result.Cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch: got %q, want %q", got, data)
	}
}

func TestBuildBytesMultiChunkFanout(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 8, MaxLinks: 2}}

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	if result.ChunkCount != 13 { // ceil(100/8)
		t.Fatalf("expected 13 chunks, got %d", result.ChunkCount)
	}
	if result.Size != 100 {
		t.Fatalf("expected size 100, got %d", result.Size)
	}

	reader := treereader.New(s)
	got, err := reader.Get(ctx, result.Cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch")
	}

	size, err := reader.GetSize(ctx, result.Cid)
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}
	if size != 100 {
		t.Fatalf("GetSize: got %d, want 100", size)
	}
}

func TestBuildBytesPopulatesChunkMetaFields(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 8, MaxLinks: 2}}

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	if len(result.ChunkHashes) != result.ChunkCount {
		t.Fatalf("expected %d chunk hashes, got %d", result.ChunkCount, len(result.ChunkHashes))
	}
	if len(result.ChunkSizes) != result.ChunkCount {
		t.Fatalf("expected %d chunk sizes, got %d", result.ChunkCount, len(result.ChunkSizes))
	}
	var total uint64
	for i, size := range result.ChunkSizes {
		total += size
		if result.ChunkHashes[i].IsZero() {
			t.Fatalf("chunk %d: zero hash", i)
		}
	}
	if total != 100 {
		t.Fatalf("chunk sizes should sum to the plaintext size, got %d", total)
	}
}

func TestBuildBytesEncryptedPopulatesCipherSizes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 8, MaxLinks: 2}, Encrypt: true}

	data := make([]byte, 50)
	for i := range data {
		data[i] = byte(i)
	}
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	if len(result.ChunkHashes) != result.ChunkCount || len(result.ChunkSizes) != result.ChunkCount {
		t.Fatalf("expected chunk metadata for every chunk, got %d hashes, %d sizes, %d chunks",
			len(result.ChunkHashes), len(result.ChunkSizes), result.ChunkCount)
	}
	// Ciphertext is always larger than plaintext by the AEAD overhead, so
	// the recorded sizes can't just equal the 8-byte chunk size.
	for i, size := range result.ChunkSizes {
		if size <= 8 {
			t.Fatalf("chunk %d: expected ciphertext size > plaintext chunk size, got %d", i, size)
		}
	}
}

func TestBuildBytesDeterministic(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 16, MaxLinks: 3}}

	data := bytes.Repeat([]byte("convergent-content-"), 10)
	r1, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("first BuildBytes: %v", err)
	}
	r2, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("second BuildBytes: %v", err)
	}
	if r1.Cid.Hash != r2.Cid.Hash {
		t.Fatalf("expected identical CIDs for identical content, got %s and %s", r1.Cid.Hash, r2.Cid.Hash)
	}
}

func TestBuildBytesEncryptedRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 32, MaxLinks: 4}, Encrypt: true}

	data := make([]byte, 500)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	if result.Cid.Key == nil {
		t.Fatalf("expected encrypted build to set a root key")
	}

	reader := treereader.New(s)
	got, err := reader.Get(ctx, result.Cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("encrypted roundtrip mismatch")
	}

	// Without the key, the stored bytes must not decode to the plaintext.
	noKey := result.Cid
	noKey.Key = nil
	gotNoKey, err := reader.Get(ctx, noKey)
	if err == nil && bytes.Equal(gotNoKey, data) {
		t.Fatalf("expected ciphertext to differ from plaintext without the key")
	}
}

func TestBuildBytesEncryptedConverges(t *testing.T) {
	ctx := context.Background()
	s1 := store.NewMemoryStore()
	s2 := store.NewMemoryStore()
	b1 := &Builder{Store: s1, Params: Params{ChunkSize: 16, MaxLinks: 4}, Encrypt: true}
	b2 := &Builder{Store: s2, Params: Params{ChunkSize: 16, MaxLinks: 4}, Encrypt: true}

	data := bytes.Repeat([]byte("same content everywhere"), 5)
	r1, err := b1.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("b1.BuildBytes: %v", err)
	}
	r2, err := b2.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("b2.BuildBytes: %v", err)
	}
	if r1.Cid.Hash != r2.Cid.Hash {
		t.Fatalf("expected convergent encryption to produce identical hashes, got %s and %s", r1.Cid.Hash, r2.Cid.Hash)
	}
	if *r1.Cid.Key != *r2.Cid.Key {
		t.Fatalf("expected convergent encryption to derive identical root keys")
	}
}

func TestBuildStreamingUnencrypted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: Params{ChunkSize: 10, MaxLinks: 2}}

	data := bytes.Repeat([]byte("x"), 55)
	result, err := b.BuildStreaming(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("BuildStreaming: %v", err)
	}

	reader := treereader.New(s)
	got, err := reader.Get(ctx, result.Cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("streaming roundtrip mismatch")
	}
}

func TestBuildDir(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &Builder{Store: s, Params: DefaultParams()}

	fileA, err := b.BuildBytes(ctx, []byte("file a"))
	if err != nil {
		t.Fatalf("BuildBytes a: %v", err)
	}
	fileB, err := b.BuildBytes(ctx, []byte("file b"))
	if err != nil {
		t.Fatalf("BuildBytes b: %v", err)
	}

	entriesIn := []htypes.DirEntry{
		{Name: "a.txt", Cid: fileA.Cid, Size: fileA.Size, LinkType: htypes.LinkBlob},
		{Name: "b.txt", Cid: fileB.Cid, Size: fileB.Size, LinkType: htypes.LinkBlob},
	}
	dirCid, err := b.BuildDir(ctx, entriesIn)
	if err != nil {
		t.Fatalf("BuildDir: %v", err)
	}

	reader := treereader.New(s)
	isDir, err := reader.IsDirectory(ctx, dirCid)
	if err != nil {
		t.Fatalf("IsDirectory: %v", err)
	}
	if !isDir {
		t.Fatalf("expected directory")
	}

	entries, err := reader.ListDirectory(ctx, dirCid)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Fatalf("unexpected entry order/names: %+v", entries)
	}

	resolved, err := reader.ResolvePath(ctx, dirCid, "b.txt")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	got, err := reader.Get(ctx, resolved)
	if err != nil {
		t.Fatalf("Get resolved: %v", err)
	}
	if string(got) != "file b" {
		t.Fatalf("resolved content mismatch: %q", got)
	}
}
