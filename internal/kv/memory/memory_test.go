package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicegate/internal/kv"
)

func TestPutConditionedOnAbsence(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := kv.Key{Partition: "u1"}

	err := s.Put(ctx, "users", key, kv.Item{"userId": "u1", "deviceId": ""}, true)
	require.NoError(t, err)

	// Second conditioned put must fail and leave the first record intact
	err = s.Put(ctx, "users", key, kv.Item{"userId": "u1", "deviceId": "other"}, true)
	assert.ErrorIs(t, err, kv.ErrConditionFailed)

	it, err := s.Get(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "", it.String("deviceId"))
}

func TestPutOverwritesWithoutCondition(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := kv.Key{Partition: "u1"}

	require.NoError(t, s.Put(ctx, "users", key, kv.Item{"deviceId": "a"}, false))
	require.NoError(t, s.Put(ctx, "users", key, kv.Item{"deviceId": "b"}, false))

	it, err := s.Get(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "b", it.String("deviceId"))
}

func TestGetMissing(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "users", kv.Key{Partition: "nope"})
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestUpdateMustExist(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := kv.Key{Partition: "u1"}

	err := s.Update(ctx, "users", key, kv.Item{"deviceId": ""}, &kv.UpdateCond{MustExist: true})
	assert.ErrorIs(t, err, kv.ErrConditionFailed)

	require.NoError(t, s.Put(ctx, "users", key, kv.Item{"deviceId": "d"}, false))
	err = s.Update(ctx, "users", key, kv.Item{"deviceId": ""}, &kv.UpdateCond{MustExist: true})
	require.NoError(t, err)

	it, err := s.Get(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "", it.String("deviceId"))
}

func TestUpdateFieldEquals(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := kv.Key{Partition: "u1"}

	require.NoError(t, s.Put(ctx, "users", key, kv.Item{"deviceId": ""}, false))

	// Bind succeeds while the field still holds the expected value
	err := s.Update(ctx, "users", key, kv.Item{"deviceId": "dev-a"},
		&kv.UpdateCond{MustExist: true, FieldEquals: kv.Item{"deviceId": ""}})
	require.NoError(t, err)

	// A second conditioned bind loses the race
	err = s.Update(ctx, "users", key, kv.Item{"deviceId": "dev-b"},
		&kv.UpdateCond{MustExist: true, FieldEquals: kv.Item{"deviceId": ""}})
	assert.ErrorIs(t, err, kv.ErrConditionFailed)

	it, err := s.Get(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "dev-a", it.String("deviceId"))
}

func TestDeleteReturnsPrevious(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := kv.Key{Partition: "u1"}

	require.NoError(t, s.Put(ctx, "users", key, kv.Item{"deviceId": "d"}, false))

	prev, err := s.Delete(ctx, "users", key)
	require.NoError(t, err)
	assert.Equal(t, "d", prev.String("deviceId"))

	_, err = s.Delete(ctx, "users", key)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestQueryOrdersBySortKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, ts := range []string{"300", "100", "200"} {
		key := kv.Key{Partition: "u1", Sort: ts}
		require.NoError(t, s.Put(ctx, "logs", key, kv.Item{"timestamp": ts}, false))
	}
	require.NoError(t, s.Put(ctx, "logs", kv.Key{Partition: "u2", Sort: "150"}, kv.Item{"timestamp": "150"}, false))

	items, err := s.Query(ctx, "logs", "u1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "100", items[0].String("timestamp"))
	assert.Equal(t, "200", items[1].String("timestamp"))
	assert.Equal(t, "300", items[2].String("timestamp"))
}

func TestScanReturnsAllItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "users", kv.Key{Partition: "u1"}, kv.Item{"userId": "u1"}, false))
	require.NoError(t, s.Put(ctx, "users", kv.Key{Partition: "u2"}, kv.Item{"userId": "u2"}, false))

	items, err := s.Scan(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
