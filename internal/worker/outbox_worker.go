package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gprbooking/internal/database"
	"gprbooking/internal/domain"
	"gprbooking/internal/metrics"
	"gprbooking/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskSheetsUpsertBooking = "sheets_upsert_booking"
	TaskSheetsUpdateStatus  = "sheets_update_status"
	TaskSheetsAppendContact = "sheets_append_contact"
	TaskNotifyBooking       = "notify_booking"
	TaskNotifyStatus        = "notify_status"
	TaskNotifyContact       = "notify_contact"
)

// TaskPayload is persisted in SyncTask.Payload as JSON.
type TaskPayload struct {
	Booking *models.Booking           `json:"booking,omitempty"`
	Contact *models.ContactSubmission `json:"contact,omitempty"`
	Status  string                    `json:"status,omitempty"`
	Action  string                    `json:"action,omitempty"`
}

// OutboxWorker drains sync_queue into side systems: the Sheets mirror and
// admin notifications. The DB row is the source of truth; redis and the
// in-memory channel only shorten the wait before the next poll.
type OutboxWorker struct {
	db            domain.SyncQueueRepository
	sheets        domain.SheetsWriter
	notifier      domain.Notifier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	wakeup        chan struct{}
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults. sheets, notifier and
// redisClient may be nil; tasks for a missing sink complete as no-ops.
func NewOutboxWorker(
	db domain.SyncQueueRepository,
	sheets domain.SheetsWriter,
	notifier domain.Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *OutboxWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		db:            db,
		sheets:        sheets,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, 128),
		wakeup:        make(chan struct{}, 1),
		redisQueueKey: "gpr:outbox:queue",
		deadLetterKey: "gpr:outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
func (w *OutboxWorker) EnqueueTask(ctx context.Context, taskType, entityID string, payload any) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if entityID == "" {
		return errors.New("entity id is required")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		EntityID: entityID,
		Payload:  string(payloadBytes),
		Status:   database.SyncStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		select {
		case w.wakeup <- struct{}{}:
		default:
		}
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	if n, err := w.db.ResetStaleSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to reset stale tasks")
	} else if n > 0 {
		w.logger.Info().Int64("count", n).Msg("Requeued stale tasks")
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending tasks failed")
		}
		if err != nil || len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.wakeup:
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("Decode redis task failed")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.SyncTask) {
	claimed, err := w.db.ClaimSyncTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Claim task failed")
		return
	}
	if !claimed {
		return
	}

	log := w.logger.With().Int64("task_id", task.ID).Str("task_type", task.TaskType).Logger()

	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, task.EntityID, payload); err != nil {
		log.Warn().Err(err).Int("attempt", task.RetryCount+1).Msg("Task failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("Mark completed failed")
	}
	metrics.IncOutboxTask(task.TaskType, database.SyncStatusCompleted)
}

func (w *OutboxWorker) handleTask(ctx context.Context, taskType, entityID string, p TaskPayload) error {
	switch taskType {
	case TaskSheetsUpsertBooking:
		if p.Booking == nil {
			return errors.New("booking payload missing")
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpsertBooking(ctx, p.Booking)
	case TaskSheetsUpdateStatus:
		if p.Status == "" {
			return errors.New("status missing")
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpdateBookingStatus(ctx, entityID, p.Status)
	case TaskSheetsAppendContact:
		if p.Contact == nil {
			return errors.New("contact payload missing")
		}
		if w.sheets == nil {
			return nil
		}
		return w.sheets.AppendContact(ctx, p.Contact)
	case TaskNotifyBooking:
		if p.Booking == nil {
			return errors.New("booking payload missing")
		}
		if w.notifier == nil {
			return nil
		}
		return w.notifier.NotifyBooking(ctx, p.Booking)
	case TaskNotifyStatus:
		if p.Booking == nil || p.Action == "" {
			return errors.New("booking or action missing")
		}
		if w.notifier == nil {
			return nil
		}
		return w.notifier.NotifyStatusChange(ctx, p.Booking, p.Action)
	case TaskNotifyContact:
		if p.Contact == nil {
			return errors.New("contact payload missing")
		}
		if w.notifier == nil {
			return nil
		}
		return w.notifier.NotifyContact(ctx, p.Contact)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark retry failed")
	}
	metrics.IncOutboxTask(task.TaskType, database.SyncStatusRetry)
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task failed errored")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("Task moved to dead letter")
	metrics.IncOutboxTask(task.TaskType, database.SyncStatusFailed)
	w.pushDeadLetter(ctx, task)
}

func decodePayload(raw string) (TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *OutboxWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}
