// Package storage provides the key→bytes backend used by the vault,
// the schedule store, and conversation persistence.
//
// Keys are slash-separated paths (e.g. "vault/MY_KEY.json"). A Get on a
// missing key returns (nil, nil) — absence is not an error.
package storage

import "context"

// Backend is the uniform key→bytes store.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
