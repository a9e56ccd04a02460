package billing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/redisclient"
)

// Worker drains the billing queue. Jobs are processed one at a time in
// pop order. Delivery is at-least-once, so processing leans entirely on
// the idempotent invoice creation in Service.
type Worker struct {
	queue   redisclient.BillingQueue
	svc     *Service
	backoff time.Duration
	log     zerolog.Logger
}

func NewWorker(queue redisclient.BillingQueue, svc *Service, log zerolog.Logger) *Worker {
	return &Worker{
		queue:   queue,
		svc:     svc,
		backoff: time.Second,
		log:     log,
	}
}

// Run blocks until ctx is cancelled. A failing job never stops the
// loop: unknown appointments are dropped, transient errors are logged
// and the job is given up for this attempt. Pop failures back off for
// a moment so a Redis outage does not turn into a tight error loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Msg("billing worker started")

	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.log.Info().Msg("billing worker stopping")
				return nil
			}
			w.log.Error().Err(err).Msg("billing queue pop failed")

			select {
			case <-ctx.Done():
				w.log.Info().Msg("billing worker stopping")
				return nil
			case <-time.After(w.backoff):
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job redisclient.BillingJob) {
	err := w.svc.CreateForAppointment(ctx, job.AppointmentID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAppointmentNotFound):
		w.log.Warn().
			Str("appointment_id", job.AppointmentID.String()).
			Msg("billing job references unknown appointment, dropping")
	default:
		// Best effort: the job is lost for this attempt. See DESIGN.md
		// on the missing redelivery path.
		w.log.Error().Err(err).
			Str("appointment_id", job.AppointmentID.String()).
			Msg("billing job failed")
	}
}
