package template

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpphooks/ingestcore/internal/model"
)

func TestProjector_Apply_ByProviderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM template WHERE integration_id").
		WithArgs(int64(7), "prov-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE template").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, submitted_at, approved_at, rejected_at").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at", "approved_at", "rejected_at"}).
			AddRow(55, nil, nil, nil))
	mock.ExpectExec("UPDATE template_version SET").WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	p := NewProjector()
	err = p.Apply(context.Background(), tx, 7, 3, model.NormalizedEvent{
		Kind: model.KindTemplate, TemplateProviderID: "prov-1", TemplateStatus: model.TemplateApproved,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjector_Apply_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM template WHERE company_id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tx, err := db.Begin()
	require.NoError(t, err)

	p := NewProjector()
	err = p.Apply(context.Background(), tx, 0, 3, model.NormalizedEvent{
		Kind: model.KindTemplate, TemplateName: "welcome", TemplateStatus: model.TemplateApproved,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
