// Package kv defines the generic key-value store abstraction the gateway
// persists through. All correctness under concurrent requests relies on the
// store's conditional-write primitives, never on in-process locking.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get and Delete when no item matches the key.
	ErrNotFound = errors.New("kv: item not found")
	// ErrConditionFailed is returned by Put and Update when the write
	// condition did not hold against current store state.
	ErrConditionFailed = errors.New("kv: condition failed")
)

// Item is a single stored record. Values are strings or bools.
type Item map[string]any

// Key addresses an item. Sort is empty for tables keyed by partition only.
type Key struct {
	Partition string
	Sort      string
}

// UpdateCond restricts an Update to current store state. A nil condition
// means unconditional. MustExist requires the item to be present.
// FieldEquals, if non-nil, additionally requires every listed attribute to
// equal the given value (used for the first-time device bind).
type UpdateCond struct {
	MustExist   bool
	FieldEquals map[string]any
}

// Store is the contract every driver (DynamoDB, Postgres, in-memory)
// implements. Put with mustNotExist and conditioned Update are atomic in the
// backing store; callers never read-then-write.
type Store interface {
	// Get returns the item at key, or ErrNotFound.
	Get(ctx context.Context, table string, key Key) (Item, error)

	// Put writes item. With mustNotExist it fails with ErrConditionFailed
	// if an item with the same key already exists; otherwise it overwrites.
	Put(ctx context.Context, table string, key Key, item Item, mustNotExist bool) error

	// Update sets the given attributes on the item at key, subject to cond.
	Update(ctx context.Context, table string, key Key, set Item, cond *UpdateCond) error

	// Delete removes the item at key and returns its previous value,
	// or ErrNotFound if nothing was stored.
	Delete(ctx context.Context, table string, key Key) (Item, error)

	// Scan returns every item in the table, unordered.
	Scan(ctx context.Context, table string) ([]Item, error)

	// Query returns all items sharing the partition key, in sort-key order.
	Query(ctx context.Context, table string, partition string) ([]Item, error)
}

// String reads a string attribute, tolerating missing or mistyped values.
func (it Item) String(attr string) string {
	if v, ok := it[attr].(string); ok {
		return v
	}
	return ""
}

// Bool reads a bool attribute, tolerating missing or mistyped values.
func (it Item) Bool(attr string) bool {
	if v, ok := it[attr].(bool); ok {
		return v
	}
	return false
}
