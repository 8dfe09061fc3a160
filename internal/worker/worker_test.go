package worker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpphooks/ingestcore/internal/config"
	"github.com/wpphooks/ingestcore/internal/integration"
	"github.com/wpphooks/ingestcore/internal/projection/consent"
	"github.com/wpphooks/ingestcore/internal/projection/recipient"
	"github.com/wpphooks/ingestcore/internal/projection/template"
	"github.com/wpphooks/ingestcore/internal/rawstore"
)

type sqlConn struct{ db *sql.DB }

func (c *sqlConn) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func newWorker(t *testing.T, db *sql.DB) *Worker {
	t.Helper()
	cfg := config.Config{WorkerBatchSize: 10, WorkerIntervalMS: 1000, MaxAttempts: 10}
	return New(
		&sqlConn{db: db},
		rawstore.NewMySQLStore(db, 0),
		integration.NewMySQLRepository(),
		recipient.NewProjector(),
		template.NewProjector(),
		consent.NewProjector("phone", true),
		cfg,
	)
}

func TestTick_EmptyBatchCommitsAndReturns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)+ FROM wpp_webhook_event_raw").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_id", "event_kind", "provider_event_id", "message_id", "whatsapp_message_id",
			"template_name", "template_provider_id", "event_status", "received_at", "payload_json",
			"dedupe_key", "processed", "attempts", "last_error", "processed_at",
		}))
	mock.ExpectCommit()

	w := newWorker(t, db)
	w.tick(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTick_ReentrantGuardSkipsOverlap(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := newWorker(t, db)
	w.ticking = 1 // simulate an in-flight tick
	w.tick(context.Background())
	// A tick that got past the guard would reset ticking to 0 on return
	// (an unexpected Begin on the mock is only logged by tick, not
	// raised), so the guard is proven by ticking still being 1.
	assert.Equal(t, int32(1), w.ticking)
}

func TestTick_UnknownKindRowFinalizesOnFirstAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.|\n)+ FROM wpp_webhook_event_raw").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_id", "event_kind", "provider_event_id", "message_id", "whatsapp_message_id",
			"template_name", "template_provider_id", "event_status", "received_at", "payload_json",
			"dedupe_key", "processed", "attempts", "last_error", "processed_at",
		}).AddRow(1, "app1", "UNKNOWN", nil, nil, nil, nil, nil, nil, time.Now(), []byte(`{"foo":"bar"}`), "dk1", false, 0, nil, nil))
	mock.ExpectExec("UPDATE wpp_webhook_event_raw SET processed = 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := newWorker(t, db)
	w.tick(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}
