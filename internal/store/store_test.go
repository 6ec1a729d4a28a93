package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/htreeio/hashtree/internal/herrors"
)

func TestMemoryStorePutGetHas(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("hello, world")
	hash, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	has, err := s.Has(ctx, hash)
	if err != nil || !has {
		t.Fatalf("Has: got (%v, %v), want (true, nil)", has, err)
	}

	got, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var zero [32]byte
	_, err := s.Get(ctx, zero)
	if !herrors.Is(err, herrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemoryStorePutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := []byte("convergent content")

	h1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	h2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ across idempotent puts: %v != %v", h1, h2)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 stored blob, got %d", s.Len())
	}
}
