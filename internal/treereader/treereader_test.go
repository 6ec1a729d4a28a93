package treereader

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/htreeio/hashtree/internal/chunker"
	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/store"
)

func TestReadFileRange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &chunker.Builder{Store: s, Params: chunker.Params{ChunkSize: 10, MaxLinks: 3}}

	data := make([]byte, 97)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}

	r := New(s)
	for _, tc := range []struct{ offset, length uint64 }{
		{0, 5},
		{10, 10},
		{90, 7},
		{5, 50},
		{0, 97},
	} {
		got, err := r.ReadFileRange(ctx, result.Cid, tc.offset, tc.length)
		if err != nil {
			t.Fatalf("ReadFileRange(%d,%d): %v", tc.offset, tc.length, err)
		}
		want := data[tc.offset : tc.offset+tc.length]
		if !bytes.Equal(got, want) {
			t.Fatalf("ReadFileRange(%d,%d) = %q, want %q", tc.offset, tc.length, got, want)
		}
	}
}

func TestGetStream(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &chunker.Builder{Store: s, Params: chunker.Params{ChunkSize: 6, MaxLinks: 2}, Encrypt: true}

	data := bytes.Repeat([]byte("streamed-data-"), 8)
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}

	r := New(s)
	stream, err := r.GetStream(ctx, result.Cid)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("stream mismatch")
	}
}

func TestVerifyTree(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &chunker.Builder{Store: s, Params: chunker.Params{ChunkSize: 8, MaxLinks: 2}}

	data := bytes.Repeat([]byte("verify-me"), 10)
	result, err := b.BuildBytes(ctx, data)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}

	r := New(s)
	res := r.VerifyTree(ctx, result.Cid)
	if !res.Valid {
		t.Fatalf("expected valid tree, got error: %v", res.Err)
	}
	if res.NodesVisited == 0 {
		t.Fatalf("expected at least one node visited")
	}

	missing := htypes.Cid{Hash: htypes.Hash{0xff}}
	res2 := r.VerifyTree(ctx, missing)
	if res2.Valid {
		t.Fatalf("expected invalid result for a missing hash")
	}
}

func TestListDirectoryPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &chunker.Builder{Store: s, Params: chunker.DefaultParams()}

	fileA, err := b.BuildBytes(ctx, []byte("a"))
	if err != nil {
		t.Fatalf("BuildBytes a: %v", err)
	}
	fileB, err := b.BuildBytes(ctx, []byte("b"))
	if err != nil {
		t.Fatalf("BuildBytes b: %v", err)
	}
	fileC, err := b.BuildBytes(ctx, []byte("c"))
	if err != nil {
		t.Fatalf("BuildBytes c: %v", err)
	}

	// Deliberately not alphabetical: z, then a, then m.
	built := []htypes.DirEntry{
		{Name: "z.txt", Cid: fileA.Cid, Size: fileA.Size, LinkType: htypes.LinkBlob},
		{Name: "a.txt", Cid: fileB.Cid, Size: fileB.Size, LinkType: htypes.LinkBlob},
		{Name: "m.txt", Cid: fileC.Cid, Size: fileC.Size, LinkType: htypes.LinkBlob},
	}
	dirCid, err := b.BuildDir(ctx, built)
	if err != nil {
		t.Fatalf("BuildDir: %v", err)
	}

	r := New(s)
	entries, err := r.ListDirectory(ctx, dirCid)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != len(built) {
		t.Fatalf("expected %d entries, got %d", len(built), len(entries))
	}
	for i, e := range entries {
		if e.Name != built[i].Name {
			t.Fatalf("entry %d: expected %q to preserve build order, got %q", i, built[i].Name, e.Name)
		}
	}
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := &chunker.Builder{Store: s, Params: chunker.DefaultParams()}

	fileA, err := b.BuildBytes(ctx, []byte("a"))
	if err != nil {
		t.Fatalf("BuildBytes a: %v", err)
	}
	fileB, err := b.BuildBytes(ctx, []byte("b"))
	if err != nil {
		t.Fatalf("BuildBytes b: %v", err)
	}
	dirCid, err := b.BuildDir(ctx, []htypes.DirEntry{
		{Name: "a.txt", Cid: fileA.Cid, Size: fileA.Size, LinkType: htypes.LinkBlob},
		{Name: "b.txt", Cid: fileB.Cid, Size: fileB.Size, LinkType: htypes.LinkBlob},
	})
	if err != nil {
		t.Fatalf("BuildDir: %v", err)
	}

	r := New(s)
	var paths []string
	err = r.Walk(ctx, dirCid, func(e WalkEntry) error {
		paths = append(paths, e.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 entries (dir + 2 files), got %v", paths)
	}
}
