package integration

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLRepository_Lookup_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)+ FROM integration").
		WithArgs("app1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_id", "company_id", "is_active"}).
			AddRow(1, "app1", 42, true))

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := NewMySQLRepository()
	m, err := repo.Lookup(context.Background(), tx, "app1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.CompanyID)
}

func TestMySQLRepository_Lookup_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)+ FROM integration").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_id", "company_id", "is_active"}))

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := NewMySQLRepository()
	_, err = repo.Lookup(context.Background(), tx, "missing")
	assert.ErrorIs(t, err, ErrNotActive)
}
