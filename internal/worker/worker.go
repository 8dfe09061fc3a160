// Package worker implements the asynchronous tick loop (C5): claims a
// batch of pending raw events under skip-locking, re-normalizes each
// row's authoritative payload, dispatches to the matching projection,
// and finalizes or reschedules per the retry/attempts contract.
package worker

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/wpphooks/ingestcore/internal/config"
	"github.com/wpphooks/ingestcore/internal/errors"
	"github.com/wpphooks/ingestcore/internal/integration"
	"github.com/wpphooks/ingestcore/internal/metrics"
	"github.com/wpphooks/ingestcore/internal/model"
	"github.com/wpphooks/ingestcore/internal/normalizer"
	"github.com/wpphooks/ingestcore/internal/projection/consent"
	"github.com/wpphooks/ingestcore/internal/projection/recipient"
	"github.com/wpphooks/ingestcore/internal/projection/template"
	"github.com/wpphooks/ingestcore/internal/rawstore"
	"github.com/wpphooks/ingestcore/internal/telemetry"
)

// DBConn is the subset of *database.DB the worker needs: a ctx-scoped
// transaction helper, so the worker package doesn't import database
// directly and stays test-friendly against any *sql.DB wrapper.
type DBConn interface {
	WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error
}

// Worker runs the single-process tick loop described in §4.7/§5.
type Worker struct {
	db          DBConn
	store       rawstore.Store
	integration integration.Repository
	recipients  *recipient.Projector
	templates   *template.Projector
	consents    *consent.Projector

	batchSize   int
	maxAttempts int
	interval    time.Duration

	ticking int32 // re-entrant guard, accessed via atomic CAS
}

// New constructs a Worker.
func New(db DBConn, store rawstore.Store, integrationRepo integration.Repository, recipients *recipient.Projector, templates *template.Projector, consents *consent.Projector, cfg config.Config) *Worker {
	return &Worker{
		db:          db,
		store:       store,
		integration: integrationRepo,
		recipients:  recipients,
		templates:   templates,
		consents:    consents,
		batchSize:   cfg.WorkerBatchSize,
		maxAttempts: cfg.MaxAttempts,
		interval:    time.Duration(cfg.WorkerIntervalMS) * time.Millisecond,
	}
}

// Run blocks, ticking at the configured interval, until ctx is
// cancelled. A tick that is still running when the next one fires is
// skipped — no overlapping ticks within this process.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger := telemetry.GetContextualLogger(ctx).WithField("component", "worker")
	logger.Info("worker_started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker_stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&w.ticking, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&w.ticking, 0)

	logger := telemetry.GetContextualLogger(ctx).WithField("component", "worker")

	err := w.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		batch, err := w.store.LockNextBatch(ctx, tx, w.batchSize)
		if err != nil {
			return err
		}
		metrics.WorkerBatchSize.Set(float64(len(batch)))
		if len(batch) == 0 {
			return nil
		}

		for _, row := range batch {
			w.processRow(ctx, tx, row, logger)
		}
		return nil
	})
	if err != nil {
		metrics.WorkerTickFailuresTotal.Inc()
		logger.WithError(errors.NewTickFatal(err)).Error("worker_tick_failed")
	}
}

func (w *Worker) processRow(ctx context.Context, tx *sql.Tx, row model.RawEvent, logger *telemetry.ContextualLogger) {
	parsed, err := rawstore.ParsePayloadJSON(row.PayloadJSON)
	if err != nil {
		w.fail(ctx, tx, row, "failed to parse payload: "+err.Error(), logger)
		return
	}

	event := normalizer.Normalize(parsed)

	var projErr error
	switch event.Kind {
	case model.KindMessage:
		projErr = w.projectMessage(ctx, tx, event)
	case model.KindTemplate:
		projErr = w.projectTemplate(ctx, tx, row.AppID, event)
	case model.KindUser:
		projErr = w.projectUser(ctx, tx, row.AppID, event)
	default:
		projErr = errors.NewProjectionSoft("Unrecognized payload")
	}

	if projErr == nil {
		metrics.WorkerRowsProcessedTotal.WithLabelValues("processed").Inc()
		if err := w.store.MarkProcessed(ctx, tx, row.ID, nil); err != nil {
			logger.WithError(err).Error("worker_mark_processed_failed")
		}
		return
	}

	if appErr, ok := projErr.(*errors.AppError); ok && appErr.Kind == errors.KindProjectionSoft {
		metrics.WorkerRowsProcessedTotal.WithLabelValues("soft_terminal").Inc()
		reason := appErr.Message
		if err := w.store.MarkProcessed(ctx, tx, row.ID, &reason); err != nil {
			logger.WithError(err).Error("worker_mark_processed_failed")
		}
		return
	}

	w.fail(ctx, tx, row, projErr.Error(), logger)
}

func (w *Worker) fail(ctx context.Context, tx *sql.Tx, row model.RawEvent, reason string, logger *telemetry.ContextualLogger) {
	attempts := row.Attempts + 1
	finalize := attempts > w.maxAttempts
	if finalize {
		metrics.WorkerRowsProcessedTotal.WithLabelValues("finalized_failed").Inc()
	} else {
		metrics.WorkerRowsProcessedTotal.WithLabelValues("retried").Inc()
	}
	if err := w.store.MarkFailedAttempt(ctx, tx, row.ID, attempts, reason, finalize); err != nil {
		logger.WithError(err).Error("worker_mark_failed_attempt_failed")
	}
}

func (w *Worker) projectMessage(ctx context.Context, tx *sql.Tx, event model.NormalizedEvent) error {
	if event.MessageStatus == "" {
		return errors.NewProjectionSoft("Unrecognized payload")
	}
	outcome, err := w.recipients.ApplyMessageEvent(ctx, tx, event)
	if err != nil {
		return errors.NewProjectionTransient(err)
	}
	if outcome == recipient.NotFound {
		return errors.NewProjectionSoft("Recipient not found")
	}
	return nil
}

func (w *Worker) projectTemplate(ctx context.Context, tx *sql.Tx, appID string, event model.NormalizedEvent) error {
	if event.TemplateStatus == "" {
		return errors.NewProjectionSoft("Unrecognized payload")
	}
	mapping, err := w.integration.Lookup(ctx, tx, appID)
	if err != nil {
		if stderrors.Is(err, integration.ErrNotActive) {
			return errors.NewProjectionSoft("Integration not found for appId")
		}
		return errors.NewProjectionTransient(err)
	}
	if err := w.templates.Apply(ctx, tx, mapping.ID, mapping.CompanyID, event); err != nil {
		if err == template.ErrNotFound {
			return errors.NewProjectionSoft("Template not found")
		}
		return errors.NewProjectionTransient(err)
	}
	return nil
}

func (w *Worker) projectUser(ctx context.Context, tx *sql.Tx, appID string, event model.NormalizedEvent) error {
	mapping, err := w.integration.Lookup(ctx, tx, appID)
	if err != nil {
		if stderrors.Is(err, integration.ErrNotActive) {
			return errors.NewProjectionSoft("Integration not found for appId")
		}
		return errors.NewProjectionTransient(err)
	}
	if event.Phone == "" {
		return errors.NewProjectionSoft("Unrecognized payload")
	}
	if err := w.consents.Apply(ctx, tx, mapping.CompanyID, event); err != nil {
		switch err {
		case consent.ErrBlockedIgnored, consent.ErrUserNotFound:
			return errors.NewProjectionSoft(err.Error())
		default:
			return errors.NewProjectionTransient(err)
		}
	}
	return nil
}
