package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN_DefaultParams(t *testing.T) {
	cfg := Config{Host: "localhost", Port: "3306", User: "root", Password: "pw", DBName: "wpphooks"}
	assert.Equal(t, "root:pw@tcp(localhost:3306)/wpphooks?parseTime=true&loc=UTC", cfg.DSN())
}

func TestConfig_DSN_CustomParams(t *testing.T) {
	cfg := Config{Host: "db", Port: "3306", User: "u", Password: "p", DBName: "n", Params: "tls=skip-verify"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?tls=skip-verify", cfg.DSN())
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &DB{mockDB}, mock
}

func TestDB_Health_Success(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()

	assert.NoError(t, db.Health(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_WithTransaction_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE foo").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("UPDATE foo SET x = 1")
		return execErr
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_WithTransaction_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE foo").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("UPDATE foo SET x = 1")
		return execErr
	})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_WithTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
