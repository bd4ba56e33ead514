// Package tasks schedules per-lead expiry checks on an asynq queue.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TypeLeadExpire is the task type checking a single lead's claim window.
const TypeLeadExpire = "lead:expire"

const queueExpiry = "expiry"

type LeadExpirePayload struct {
	LeadID int64 `json:"lead_id"`
}

// NewLeadExpireTask builds the expiry task for a lead.
func NewLeadExpireTask(leadID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(LeadExpirePayload{LeadID: leadID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLeadExpire, payload), nil
}

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

// Scheduler enqueues expiry tasks to run when a claim window closes.
type Scheduler struct {
	client *asynq.Client
}

func NewScheduler(rdb *redis.Client) *Scheduler {
	return &Scheduler{client: asynq.NewClient(redisOpt(rdb))}
}

// ScheduleExpiry enqueues the expiry check for leadID at the given time. A
// lead rescheduled after a release gets a second task; the first one finds
// the lead still open and does nothing.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, leadID int64, at time.Time) error {
	task, err := NewLeadExpireTask(leadID)
	if err != nil {
		return fmt.Errorf("build expire task: %w", err)
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(queueExpiry),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("enqueue expire task for lead %d: %w", leadID, err)
	}
	return nil
}

func (s *Scheduler) Close() error {
	return s.client.Close()
}

// --- Task Server (Processing tasks) ---

// LeadExpirer is the part of the lead service the processor needs.
type LeadExpirer interface {
	Expire(ctx context.Context, leadID int64) error
}

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	leads LeadExpirer
}

func NewTaskProcessor(leads LeadExpirer) *TaskProcessor {
	return &TaskProcessor{leads: leads}
}

// Mux registers the processor's handlers.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeLeadExpire, p.HandleLeadExpireTask)
	return mux
}

func (p *TaskProcessor) HandleLeadExpireTask(ctx context.Context, t *asynq.Task) error {
	var payload LeadExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal lead expire payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.LeadID <= 0 {
		return fmt.Errorf("lead expire payload without lead id: %w", asynq.SkipRetry)
	}
	return p.leads.Expire(ctx, payload.LeadID)
}

// NewServer configures an asynq server for the expiry queue. Start it with
// Start(processor.Mux()) and stop it with Shutdown.
func NewServer(rdb *redis.Client, concurrency int) *asynq.Server {
	return asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueExpiry: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("asynq task failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
		},
	)
}
