package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"devicegate/internal/kv"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })

	db := bun.NewDB(sqldb, pgdialect.New())
	return New(db), mock
}

func TestPutMustNotExistMapsConflict(t *testing.T) {
	store, mock := newMockStore(t)

	// ON CONFLICT DO NOTHING reports zero affected rows on conflict
	mock.ExpectExec(`INSERT INTO "kv_items"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Put(context.Background(), "users",
		kv.Key{Partition: "u1"}, kv.Item{"userId": "u1"}, true)
	assert.ErrorIs(t, err, kv.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutMustNotExistSucceeds(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "kv_items"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), "users",
		kv.Key{Partition: "u1"}, kv.Item{"userId": "u1"}, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionedUpdateMapsMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "kv_items"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), "users",
		kv.Key{Partition: "u1"},
		kv.Item{"deviceId": ""},
		&kv.UpdateCond{MustExist: true})
	assert.ErrorIs(t, err, kv.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "users", kv.Key{Partition: "u1"})
	assert.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesDoc(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"tbl", "pk", "sk", "doc"}).
		AddRow("users", "u1", "", []byte(`{"userId":"u1","deviceId":"","timestamp":"1000"}`))
	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	it, err := store.Get(context.Background(), "users", kv.Key{Partition: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", it.String("userId"))
	assert.Equal(t, "", it.String("deviceId"))
	require.NoError(t, mock.ExpectationsWereMet())
}
