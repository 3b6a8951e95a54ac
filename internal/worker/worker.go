package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectivity/internal/broker"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/verification"
	apperrors "connectivity/pkg/errors"
	"connectivity/pkg/logging"
	"connectivity/pkg/metrics"
	"connectivity/pkg/models"
)

type Publisher interface {
	Publish(ctx context.Context, o *models.Outcome) error
}

type Options struct {
	Name         string
	Kind         models.Kind
	Queue        string
	DrainTimeout time.Duration
}

// Worker turns WorkItems from one queue into stored and published outcomes,
// one message at a time.
type Worker struct {
	name         string
	kind         models.Kind
	queue        string
	drainTimeout time.Duration

	consumer  broker.Consumer
	verifier  verification.Verifier
	store     outcome.Store
	publisher Publisher
	logger    logger.Logger

	now func() time.Time
}

func New(opts Options, consumer broker.Consumer, verifier verification.Verifier, store outcome.Store, publisher Publisher, log logger.Logger) *Worker {
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = constants.DefaultDrainTimeout
	}
	consumer.SetServiceName(opts.Name)
	return &Worker{
		name:         opts.Name,
		kind:         opts.Kind,
		queue:        opts.Queue,
		drainTimeout: drainTimeout,
		consumer:     consumer,
		verifier:     verifier,
		store:        store,
		publisher:    publisher,
		logger:       log.Named(opts.Name),
		now:          time.Now,
	}
}

func (w *Worker) Name() string {
	return w.name
}

// Run consumes until ctx is done. A nil return means an orderly stop.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logging.WithWorker(ctx, w.name)
	w.logger.InfowCtx(ctx, "Worker started", "queue", w.queue, "kind", w.kind)
	if err := w.consumer.Consume(ctx, w.queue, w.handle); err != nil {
		return fmt.Errorf("worker %s: %w", w.name, err)
	}
	w.logger.InfowCtx(ctx, "Worker stopped", "queue", w.queue)
	return nil
}

func (w *Worker) handle(ctx context.Context, msg broker.Message) broker.Disposition {
	start := time.Now()

	hctx, release := w.detach(ctx)
	defer release()

	disposition, err := w.Process(hctx, msg.Body)
	if disposition == broker.Requeue {
		w.logger.WarnwCtx(hctx, "Work item requeued",
			"message_id", msg.ID,
			"delivery", msg.Attempt,
			"error", err,
		)
	}

	metrics.ObserveWorkerMessage(w.name, disposition.String(), time.Since(start))
	return disposition
}

// detach lets the in-flight unit outlive shutdown by up to drainTimeout so
// it can still reach ack or requeue.
func (w *Worker) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(w.drainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-hctx.Done():
		}
	})
	return hctx, func() {
		stop()
		cancel()
	}
}

// Process runs one message through lookup, verification, persistence and
// publication. The returned error explains a Requeue.
func (w *Worker) Process(ctx context.Context, body []byte) (broker.Disposition, error) {
	item, err := models.ParseWorkItem(body)
	if err == nil {
		err = models.ValidateRequestID(item.RequestID)
	}
	if err != nil {
		metrics.IncDiscarded(w.name, "unaddressable")
		w.logger.ErrorwCtx(ctx, "Discarding work item without a usable request id",
			"error", err,
			"body_size", len(body),
		)
		return broker.Ack, nil
	}

	ctx = logging.WithRequestID(ctx, item.RequestID)
	if item.TraceID != "" {
		ctx = logging.WithTraceID(ctx, item.TraceID)
	}

	if err := models.ValidateWorkItem(item); err != nil {
		return w.rejectEnvelope(ctx, item, err)
	}

	if item.Kind != w.kind {
		metrics.IncDiscarded(w.name, "foreign_kind")
		w.logger.ErrorwCtx(ctx, "Discarding work item of foreign kind",
			"kind", item.Kind,
			"expected_kind", w.kind,
		)
		return broker.Ack, nil
	}

	stored, err := w.store.Get(ctx, item.RequestID)
	switch {
	case err == nil:
		metrics.IncRepublished(w.name)
		w.logger.InfowCtx(ctx, "Outcome already stored, republishing",
			"status", stored.Status,
			"publish_attempts", stored.PublishAttempts,
		)
		return w.publish(ctx, stored)
	case !errors.Is(err, outcome.ErrNotFound):
		return broker.Requeue, fmt.Errorf("result store lookup failed: %w", err)
	}

	resp, verr := w.verifier.Verify(ctx, item)
	if verification.IsAborted(verr) {
		return broker.Requeue, fmt.Errorf("verification interrupted: %w", verr)
	}

	result := verification.ToOutcome(item, resp, verr, w.now())
	if verr != nil {
		w.logger.InfowCtx(ctx, "Verification finished without approval",
			"status", result.Status,
			"error", verr,
		)
	}

	return w.complete(ctx, result)
}

// rejectEnvelope records an invalid_request outcome for an item whose
// envelope is malformed but whose request id can still key the store. The
// outcome is filed under this worker's kind.
func (w *Worker) rejectEnvelope(ctx context.Context, item *models.WorkItem, cause error) (broker.Disposition, error) {
	w.logger.WarnwCtx(ctx, "Work item envelope is invalid",
		"error", cause,
		"kind", item.Kind,
	)

	subject := item.SubjectReference
	var verr *models.ValidationError
	if errors.As(cause, &verr) && verr.Field == "subject_reference" {
		subject = ""
	}

	addressed := &models.WorkItem{
		RequestID:        item.RequestID,
		Kind:             w.kind,
		SubjectReference: subject,
	}
	result := verification.ToOutcome(addressed, nil, &verification.Error{
		Class:   verification.ClassInvalidRequest,
		Message: "invalid work item",
		Err:     cause,
	}, w.now())

	return w.complete(ctx, result)
}

// complete persists result unless an outcome already exists, then publishes
// whichever outcome is stored.
func (w *Worker) complete(ctx context.Context, result *models.Outcome) (broker.Disposition, error) {
	put, err := w.store.PutIfAbsent(ctx, result)
	if err == nil && !put.Stored && put.Existing == nil {
		err = fmt.Errorf("result store reported an existing outcome without returning it")
	}
	if errors.Is(err, outcome.ErrConflict) {
		metrics.IncDataIntegrityConflict(w.name)
		w.logger.ErrorwCtx(ctx, "Stored outcome differs from computed outcome",
			"error", apperrors.Wrap(err, apperrors.ErrDataIntegrity),
			"computed_status", result.Status,
		)
		return broker.Ack, nil
	}
	if errors.Is(err, outcome.ErrInvalidOutcome) {
		metrics.IncDiscarded(w.name, "unstorable")
		w.logger.ErrorwCtx(ctx, "Result store refused outcome, discarding work item",
			"error", err,
			"computed_status", result.Status,
		)
		return broker.Ack, nil
	}
	if err != nil {
		return broker.Requeue, fmt.Errorf("failed to persist outcome: %w", err)
	}

	if put.Stored {
		metrics.IncOutcome(w.name, string(result.Status))
		w.logger.InfowCtx(ctx, "Outcome stored",
			"status", result.Status,
			"subject_reference", result.SubjectReference,
		)
	} else {
		result = put.Existing
	}

	return w.publish(ctx, result)
}

func (w *Worker) publish(ctx context.Context, o *models.Outcome) (broker.Disposition, error) {
	if err := w.publisher.Publish(ctx, o); err != nil {
		return broker.Requeue, fmt.Errorf("failed to publish outcome: %w", err)
	}
	return broker.Ack, nil
}
