// Package resolver implements spec §6's root resolver contract: resolving
// a "<owner>/<name>" key to a Cid, and publishing a key to point at a new
// Cid, under plain or shared-key visibility.
//
// LocalResolver is grounded on the teacher's internal/refs.RefsManager,
// which maintains exactly this kind of name/hash timeline record for VCS
// branches; here the record is the §3.1 cached-root shape instead of a
// VCS ref, and it's backed by boltstore's cached_roots table rather than
// refs' own file-based store. The spec calls the resolver itself "out of
// scope" (it's meant to be implemented by a host app, possibly networked),
// but a local implementation is still worth carrying: it's what exercises
// the cached_roots table and is what the CLI's publish-adjacent commands
// actually call in a single-node setup.
package resolver

import (
	"context"
	"time"

	"github.com/htreeio/hashtree/internal/boltstore"
	"github.com/htreeio/hashtree/internal/hcrypto"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

// Entry is one row of List's result.
type Entry struct {
	Key string
	Cid htypes.Cid
}

// Resolver is the external contract spec §6 describes. The core consumes
// exactly this surface and assumes nothing about how it's implemented.
type Resolver interface {
	Resolve(ctx context.Context, key string) (htypes.Cid, error)
	ResolveShared(ctx context.Context, key string, linkKey [32]byte) (htypes.Cid, error)
	Publish(ctx context.Context, key string, cid htypes.Cid) error
	PublishShared(ctx context.Context, key string, cid htypes.Cid, recipientSecret htypes.Hash) error
	PublishPrivate(ctx context.Context, key string, cid htypes.Cid) error
	List(ctx context.Context, owner string) ([]Entry, error)
}

// LocalResolver implements Resolver against a single boltstore.Index's
// cached_roots table.
type LocalResolver struct {
	Index *boltstore.Index
}

// New constructs a LocalResolver over idx.
func New(idx *boltstore.Index) *LocalResolver {
	return &LocalResolver{Index: idx}
}

func splitKey(key string) (owner, name string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", herrors.New("resolver.splitKey", herrors.InvalidArgument,
		errMalformedKey{key})
}

type errMalformedKey struct{ key string }

func (e errMalformedKey) Error() string { return "resolver: malformed key, expected <owner>/<name>: " + e.key }

// Resolve returns the currently published Cid for key, if any.
func (r *LocalResolver) Resolve(ctx context.Context, key string) (htypes.Cid, error) {
	owner, name, err := splitKey(key)
	if err != nil {
		return htypes.Cid{}, err
	}
	rec, err := r.Index.GetCachedRoot(ctx, owner, name)
	if err != nil {
		return htypes.Cid{}, err
	}
	return htypes.Cid{Hash: rec.Hash, Key: rec.Key}, nil
}

// ResolveShared returns key's Cid using linkKey as the decryption key
// directly, bypassing whatever key (if any) the cached record itself
// carries — the counterpart of PublishShared.
func (r *LocalResolver) ResolveShared(ctx context.Context, key string, linkKey [32]byte) (htypes.Cid, error) {
	owner, name, err := splitKey(key)
	if err != nil {
		return htypes.Cid{}, err
	}
	rec, err := r.Index.GetCachedRoot(ctx, owner, name)
	if err != nil {
		return htypes.Cid{}, err
	}
	k := linkKey
	return htypes.Cid{Hash: rec.Hash, Key: &k}, nil
}

// Publish records cid (including any key it carries) as the current root
// for key, with visibility "public".
func (r *LocalResolver) Publish(ctx context.Context, key string, cid htypes.Cid) error {
	return r.publish(ctx, key, cid, "public")
}

// PublishPrivate records cid as the current root for key, carrying cid's
// own decryption key forward unchanged.
func (r *LocalResolver) PublishPrivate(ctx context.Context, key string, cid htypes.Cid) error {
	return r.publish(ctx, key, cid, "private")
}

// PublishShared records cid under a key derived for one recipient via
// hcrypto.DeriveSharedKey, without re-encrypting any chunk.
func (r *LocalResolver) PublishShared(ctx context.Context, key string, cid htypes.Cid, recipientSecret htypes.Hash) error {
	if cid.Key == nil {
		return herrors.New("resolver.PublishShared", herrors.InvalidArgument,
			errNoRootKey{})
	}
	shared := hcrypto.DeriveSharedKey(*cid.Key, recipientSecret)
	sharedCid := htypes.Cid{Hash: cid.Hash, Key: &shared}
	return r.publish(ctx, key, sharedCid, "shared")
}

type errNoRootKey struct{}

func (errNoRootKey) Error() string { return "resolver: cid has no root key to derive a shared key from" }

func (r *LocalResolver) publish(ctx context.Context, key string, cid htypes.Cid, visibility string) error {
	owner, name, err := splitKey(key)
	if err != nil {
		return err
	}
	return r.Index.PutCachedRoot(ctx, owner, name, htypes.CachedRoot{
		Hash: cid.Hash, Key: cid.Key, Visibility: visibility, UpdatedAt: time.Now().Unix(),
	})
}

// List returns every key currently published under owner.
func (r *LocalResolver) List(ctx context.Context, owner string) ([]Entry, error) {
	all, err := r.Index.ListCachedRoots(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	prefix := owner + "/"
	for k, rec := range all {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, Entry{Key: k, Cid: htypes.Cid{Hash: rec.Hash, Key: rec.Key}})
		}
	}
	return out, nil
}
