package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, queue, task_type, task_name, payload, status, priority, attempts,
	max_attempts, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// PostgresStorage keeps tasks in the queue_tasks and queue_dead_letters
// tables. Claims use FOR UPDATE SKIP LOCKED so several workers can share
// one table. Expired locks are reclaimed by the claim query itself.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool, now: time.Now}
}

func (s *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		task.ID, task.Queue, task.TaskType, task.TaskName, task.Payload, task.Status,
		task.Priority, task.Attempts, task.MaxAttempts, task.ScheduledAt, task.LockedUntil,
		task.LockedBy, task.ProcessedAt, task.Error, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
			  AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		queues, workerID, now.Add(lockDuration), now,
	)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET status = 'completed', attempts = attempts + 1, processed_at = $2,
		    locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`,
		taskID, s.now(),
	)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAfter time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET attempts = attempts + 1,
		    error = $2,
		    locked_until = NULL,
		    locked_by = NULL,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_at = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_at ELSE $3 END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errorMsg, s.now().Add(retryAfter),
	)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM queue_tasks WHERE id = $1
			RETURNING id, queue, task_type, task_name, payload, priority, error, attempts
		)
		INSERT INTO queue_dead_letters
			(id, task_id, queue, task_type, task_name, payload, priority, error, attempts, failed_at, created_at)
		SELECT $2, id, queue, task_type, task_name, payload, priority, COALESCE(error, ''), attempts, $3, $3
		FROM moved`,
		taskID, uuid.New(), now,
	)
	if err != nil {
		return fmt.Errorf("move task %s to dlq: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

func (s *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_tasks SET locked_until = $2 WHERE id = $1 AND status = 'processing'`,
		taskID, s.now().Add(duration),
	)
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return nil
}

func (s *PostgresStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM queue_tasks
		WHERE task_name = $1 AND status IN ('pending', 'processing')
		ORDER BY scheduled_at
		LIMIT 1`,
		taskName,
	)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending task %q: %w", taskName, err)
	}
	return task, nil
}

// ListDeadLetters returns the newest dead letters first.
func (s *PostgresStorage) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, queue, task_type, task_name, payload, priority, error, attempts, failed_at, created_at
		FROM queue_dead_letters
		ORDER BY failed_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadLetter, error) {
		var d DeadLetter
		err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskType, &d.TaskName, &d.Payload,
			&d.Priority, &d.Error, &d.Attempts, &d.FailedAt, &d.CreatedAt)
		return d, err
	})
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Queue, &t.TaskType, &t.TaskName, &t.Payload, &t.Status,
		&t.Priority, &t.Attempts, &t.MaxAttempts, &t.ScheduledAt, &t.LockedUntil,
		&t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
