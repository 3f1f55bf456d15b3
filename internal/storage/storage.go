// Package storage defines the seen-entry store and its implementations.
package storage

import (
	"context"
	"fmt"

	"feed_notifier/internal/model"
)

// Storage records which entry versions have already been processed.
type Storage interface {
	// Unseen returns the entries of bucket with no matching (id, updated)
	// record under the bucket's tag, in their original order, without repeats.
	Unseen(ctx context.Context, bucket model.TagBucket) (model.TagBucket, error)
	// Save records every entry of bucket in one transaction.
	Save(ctx context.Context, bucket model.TagBucket) error
	ListSeen(ctx context.Context, tag string) ([]model.SeenEntry, error)
	Close() error
}

// StoreError reports a failed store operation for a tag.
type StoreError struct {
	Op  string
	Tag string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s for tag %q: %v", e.Op, e.Tag, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
