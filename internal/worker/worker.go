package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"rezerva/internal/artifact"
	"rezerva/internal/database"
	"rezerva/internal/domain"
	"rezerva/internal/events"
	"rezerva/internal/metrics"
	"rezerva/internal/models"
	"rezerva/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Storage is the durable state the worker drives: the job queue, the
// audit log and the booking bookkeeping. *database.DB satisfies it.
type Storage interface {
	domain.JobRepository
	domain.AttemptRepository
	domain.BookingRepository
}

// ArtifactGenerator renders a reservation into a voucher.
type ArtifactGenerator interface {
	Generate(res *models.Reservation) (*artifact.Artifact, error)
}

// ArtifactStore persists vouchers and loads cached ones.
type ArtifactStore interface {
	Save(buf []byte, path string) error
	Load(path string) *artifact.Artifact
}

// DeliveryWorker consumes delivery jobs and orchestrates voucher
// generation, channel fan-out and audit recording.
type DeliveryWorker struct {
	db        Storage
	generator ArtifactGenerator
	store     ArtifactStore
	channels  []notify.Channel
	cache     domain.DeliveryCache
	events    domain.EventPublisher
	alerter   domain.Alerter
	redis     *redis.Client

	retryPolicy      RetryPolicy
	queue            chan int64
	redisQueueKey    string
	deadLetterKey    string
	pollInterval     time.Duration
	batchSize        int
	retainCompleted  int
	staleActiveAfter time.Duration
	logger           *zerolog.Logger
}

// Options tunes queue behaviour. Zero values get sane defaults.
type Options struct {
	Retry            RetryPolicy
	PollInterval     time.Duration
	BatchSize        int
	RetainCompleted  int
	StaleActiveAfter time.Duration
	Cache            domain.DeliveryCache
	Events           domain.EventPublisher
	Alerter          domain.Alerter
}

// NewDeliveryWorker builds a worker with sane defaults.
func NewDeliveryWorker(db Storage, generator ArtifactGenerator, store ArtifactStore, channels []notify.Channel, redisClient *redis.Client, opts Options, logger *zerolog.Logger) *DeliveryWorker {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	retain := opts.RetainCompleted
	if retain <= 0 {
		retain = 100
	}
	stale := opts.StaleActiveAfter
	if stale <= 0 {
		stale = 5 * time.Minute
	}

	return &DeliveryWorker{
		db:               db,
		generator:        generator,
		store:            store,
		channels:         channels,
		cache:            opts.Cache,
		events:           opts.Events,
		alerter:          opts.Alerter,
		redis:            redisClient,
		retryPolicy:      retry,
		queue:            make(chan int64, 128),
		redisQueueKey:    "delivery:queue",
		deadLetterKey:    "delivery:deadletter",
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		retainCompleted:  retain,
		staleActiveAfter: stale,
		logger:           logger,
	}
}

// Enqueue persists a job and schedules it via redis or the in-memory
// queue. The database row is the source of truth; the queues only wake
// the worker up faster than its poll interval would.
func (w *DeliveryWorker) Enqueue(ctx context.Context, job *models.DeliveryJob) error {
	if job.TransactionID == "" {
		return errors.New("transaction id is required")
	}
	if job.BookingID == 0 {
		return errors.New("booking id is required")
	}
	if job.Payload == "" {
		return errors.New("reservation payload is required")
	}
	if job.JobType == "" {
		job.JobType = models.JobTypeSendConfirmation
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = w.retryPolicy.MaxAttempts
	}

	if err := w.db.CreateDeliveryJob(ctx, job); err != nil {
		return fmt.Errorf("persist delivery job: %w", err)
	}

	// Try redis first so any worker instance can pick the job up.
	if w.redis != nil {
		if err := w.redis.LPush(ctx, w.redisQueueKey, strconv.FormatInt(job.ID, 10)).Err(); err != nil {
			w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- job.ID:
	default:
		w.logger.Warn().Int64("job_id", job.ID).Msg("in-memory queue full, job left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("delivery worker started")
	defer w.logger.Info().Msg("delivery worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if id, ok := w.tryLocalQueue(); ok {
			w.claimAndProcess(ctx, id)
			continue
		}

		if id, ok := w.tryRedis(ctx); ok {
			w.claimAndProcess(ctx, id)
			continue
		}

		if reclaimed, err := w.db.ReclaimStaleJobs(ctx, w.staleActiveAfter); err != nil {
			w.logger.Error().Err(err).Msg("reclaim stale jobs")
		} else if reclaimed > 0 {
			w.logger.Warn().Int64("count", reclaimed).Msg("reclaimed stale active jobs")
		}

		jobs, err := w.db.ClaimDueJobs(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("claim due jobs")
			w.sleep(ctx, w.pollInterval)
			continue
		}
		if len(jobs) == 0 {
			w.sleep(ctx, w.pollInterval)
			continue
		}

		for i := range jobs {
			w.processJob(ctx, &jobs[i])
		}
	}
}

func (w *DeliveryWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *DeliveryWorker) tryLocalQueue() (int64, bool) {
	select {
	case id := <-w.queue:
		return id, true
	default:
		return 0, false
	}
}

func (w *DeliveryWorker) tryRedis(ctx context.Context) (int64, bool) {
	if w.redis == nil {
		return 0, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return 0, false
	}
	if len(res) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		w.logger.Error().Err(err).Str("raw", res[1]).Msg("decode redis job id")
		return 0, false
	}
	return id, true
}

func (w *DeliveryWorker) claimAndProcess(ctx context.Context, id int64) {
	job, err := w.db.ClaimDeliveryJob(ctx, id)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", id).Msg("claim delivery job")
		return
	}
	if job == nil {
		// Claimed elsewhere, already terminal, or backoff not yet due.
		return
	}
	w.processJob(ctx, job)
}

// processJob runs one claimed job to a terminal decision: completed,
// re-waiting with backoff, or parked. Business-level channel failures
// never fail the job; only infrastructure faults do.
func (w *DeliveryWorker) processJob(ctx context.Context, job *models.DeliveryJob) {
	start := time.Now()

	res, err := decodeReservation(job.Payload)
	if err != nil {
		w.parkJob(ctx, job, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.deliver(ctx, job, res); err != nil {
		w.retryOrFail(ctx, job, err)
		return
	}

	if err := w.db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark completed")
	}
	metrics.IncJob("completed")
	metrics.ObserveJobDuration(time.Since(start).Seconds())

	if err := w.db.TrimCompletedJobs(ctx, w.retainCompleted); err != nil {
		w.logger.Warn().Err(err).Msg("trim completed jobs")
	}
}

// deliver performs generation, fan-out and audit recording. It returns an
// error only for infrastructure-level faults; everything business-level is
// absorbed into recorded outcomes.
func (w *DeliveryWorker) deliver(ctx context.Context, job *models.DeliveryJob, res *models.Reservation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()

	art := w.resolveArtifact(ctx, job, res)
	outcomes, dispatchErr := w.dispatch(ctx, job, res, art)
	w.recordOutcomes(ctx, job, outcomes)
	return dispatchErr
}

// resolveArtifact returns the voucher for this job, reusing the stored
// one when possible. It never fails the job: on generation failure the
// channels simply deliver without an attachment.
func (w *DeliveryWorker) resolveArtifact(ctx context.Context, job *models.DeliveryJob, res *models.Reservation) *artifact.Artifact {
	if art := w.loadCached(ctx, job); art != nil {
		metrics.IncArtifact("reused")
		return art
	}

	art, err := w.generator.Generate(res)
	if err != nil {
		w.logger.Error().Err(err).
			Int64("job_id", job.ID).
			Str("reservation_number", job.ReservationNumber).
			Msg("voucher generation failed, dispatching without attachment")
		metrics.IncArtifact("failed")
		return nil
	}
	metrics.IncArtifact("generated")

	if err := w.store.Save(art.Buffer, art.Path); err != nil {
		// The in-memory buffer is still usable for this job's dispatch.
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("voucher persistence failed")
		return art
	}

	w.recordArtifactPath(ctx, job, art.Path)
	return art
}

func (w *DeliveryWorker) loadCached(ctx context.Context, job *models.DeliveryJob) *artifact.Artifact {
	var path string
	if w.cache != nil {
		if p, err := w.cache.ArtifactPath(ctx, job.BookingID); err == nil && p != "" {
			path = p
		}
	}
	if path == "" {
		p, err := w.db.GetBookingArtifactPath(ctx, job.BookingID)
		if err != nil {
			if !errors.Is(err, database.ErrBookingNotFound) {
				w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("artifact path lookup failed")
			}
			return nil
		}
		path = p
	}
	return w.store.Load(path)
}

// recordArtifactPath is best-effort bookkeeping; delivery proceeds even
// when the booking row or the cache cannot be updated.
func (w *DeliveryWorker) recordArtifactPath(ctx context.Context, job *models.DeliveryJob, path string) {
	if err := w.db.SetBookingArtifactPath(ctx, job.BookingID, path); err != nil {
		w.logger.Warn().Err(err).Int64("booking_id", job.BookingID).Msg("record artifact path on booking failed")
	}
	if w.cache != nil {
		if err := w.cache.SetArtifactPath(ctx, job.BookingID, path); err != nil {
			w.logger.Warn().Err(err).Int64("booking_id", job.BookingID).Msg("cache artifact path failed")
		}
	}
}

type channelOutcome struct {
	channel string
	outcome notify.Outcome
}

// dispatch fans out to all channels concurrently and waits for every one
// to settle. A slow or failing channel never blocks or cancels the others.
// A panicking channel is an infrastructure fault: its error is returned
// only after every other channel has settled and been collected.
func (w *DeliveryWorker) dispatch(ctx context.Context, job *models.DeliveryJob, res *models.Reservation, art *artifact.Artifact) ([]channelOutcome, error) {
	results := make([]channelOutcome, len(w.channels))
	faults := make([]error, len(w.channels))

	var wg sync.WaitGroup
	for i, ch := range w.channels {
		wg.Add(1)
		go func(i int, ch notify.Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					faults[i] = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
				}
			}()
			results[i] = channelOutcome{
				channel: ch.Name(),
				outcome: ch.Deliver(ctx, res, job.TransactionID, art),
			}
		}(i, ch)
	}
	wg.Wait()

	settled := make([]channelOutcome, 0, len(results))
	for i := range results {
		if faults[i] == nil {
			settled = append(settled, results[i])
		}
	}
	return settled, errors.Join(faults...)
}

// recordOutcomes appends exactly one audit row per channel. Audit write
// failures are logged and never escalated.
func (w *DeliveryWorker) recordOutcomes(ctx context.Context, job *models.DeliveryJob, outcomes []channelOutcome) {
	for _, co := range outcomes {
		status := models.AttemptStatusFailed
		if co.outcome.Success {
			status = models.AttemptStatusSuccess
		}

		attempt := models.DeliveryAttempt{
			TransactionID:     job.TransactionID,
			ReservationNumber: job.ReservationNumber,
			Channel:           co.channel,
			Recipient:         co.outcome.Recipient,
			Status:            status,
			Message:           co.outcome.Message,
		}
		if co.outcome.ProviderID != "" {
			id := co.outcome.ProviderID
			attempt.ProviderMessageID = &id
		}

		if err := w.db.RecordDeliveryAttempt(ctx, &attempt); err != nil {
			w.logger.Error().Err(err).
				Str("channel", co.channel).
				Str("transaction_id", job.TransactionID).
				Msg("record delivery attempt failed")
		}
		metrics.IncDelivery(co.channel, status)

		if !co.outcome.Success {
			w.logger.Warn().
				Str("channel", co.channel).
				Str("transaction_id", job.TransactionID).
				Bool("transient", co.outcome.Transient).
				Str("message", co.outcome.Message).
				Msg("channel delivery failed")
		}
	}
}

// retryOrFail re-queues the job with backoff, or parks it once the
// attempt budget is spent. Parked jobs are kept forever and surfaced to
// operators.
func (w *DeliveryWorker) retryOrFail(ctx context.Context, job *models.DeliveryJob, cause error) {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.retryPolicy.MaxAttempts
	}
	if job.AttemptCount >= maxAttempts {
		w.parkJob(ctx, job, cause)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(job.AttemptCount)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusWaiting, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark retry")
	}
	metrics.IncJob("retried")
	w.logger.Warn().Err(cause).
		Int64("job_id", job.ID).
		Int("attempt", job.AttemptCount).
		Dur("backoff", nextDelay).
		Msg("delivery job scheduled for retry")
}

func (w *DeliveryWorker) parkJob(ctx context.Context, job *models.DeliveryJob, cause error) {
	if err := w.db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark failed")
	}
	metrics.IncJob("failed")
	w.pushDeadLetter(ctx, job)

	if w.events != nil {
		_ = w.events.PublishJSON(events.EventDeliveryParked, events.DeliveryParkedPayload{
			JobID:             job.ID,
			TransactionID:     job.TransactionID,
			ReservationNumber: job.ReservationNumber,
			AttemptCount:      job.AttemptCount,
			LastError:         cause.Error(),
		})
	}
	if w.alerter != nil {
		w.alerter.JobParked(ctx, job, cause.Error())
	}
	w.logger.Error().Err(cause).
		Int64("job_id", job.ID).
		Str("transaction_id", job.TransactionID).
		Msg("delivery job parked after exhausting retries")
}

func (w *DeliveryWorker) pushDeadLetter(ctx context.Context, job *models.DeliveryJob) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("deadletter push")
	}
}

func decodeReservation(raw string) (*models.Reservation, error) {
	var res models.Reservation
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, err
	}
	return &res, nil
}
