package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config tunes the queue
type Config struct {
	Prefix             string
	Concurrency        int
	MaxAttempts        int
	BackoffBase        time.Duration
	JobTimeout         time.Duration
	StuckAfter         time.Duration
	PromoteInterval    time.Duration
	CompletedRetention int64
	JobTTL             time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 10 * time.Minute
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = time.Second
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 1000
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 7 * 24 * time.Hour
	}
	return c
}

// Queue is the sms-parse queue. Keys live under "<prefix>sms-parse:".
type Queue struct {
	client    *redis.Client
	cfg       Config
	processor Processor
	logger    *log.Logger
	keys      keys

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type keys struct {
	base      string
	waiting   string
	active    string
	delayed   string
	completed string
	failed    string
	stats     string
}

func (k keys) job(id string) string      { return k.base + "job:" + id }
func (k keys) dedupe(smsID uint) string { return k.base + "sms:" + strconv.FormatUint(uint64(smsID), 10) }

// releaseDedupe deletes the per-SMS key only while it still points at this job
var releaseDedupe = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewQueue creates the queue; processor may be set later with SetProcessor before Start
func NewQueue(client *redis.Client, cfg Config, processor Processor, logger *log.Logger) *Queue {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	base := cfg.Prefix + "sms-parse:"
	return &Queue{
		client:    client,
		cfg:       cfg,
		processor: processor,
		logger:    logger,
		keys: keys{
			base:      base,
			waiting:   base + "waiting",
			active:    base + "active",
			delayed:   base + "delayed",
			completed: base + "completed",
			failed:    base + "failed",
			stats:     base + "stats",
		},
	}
}

// SetProcessor wires the job handler; the ingest flow and the queue depend on each other
func (q *Queue) SetProcessor(p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = p
}

// Start launches workers, the delayed-job promoter and the stuck sweeper. The returned func stops them and waits.
func (q *Queue) Start(parent context.Context) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return func() {}
	}
	if q.processor == nil {
		q.logger.Printf("jobqueue: no processor configured, workers not started")
		return func() {}
	}
	q.running = true

	ctx, cancel := context.WithCancel(parent)
	q.logger.Printf("jobqueue: starting %d workers (max attempts %d, backoff base %s)", q.cfg.Concurrency, q.cfg.MaxAttempts, q.cfg.BackoffBase)

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.wg.Add(2)
	go q.promoter(ctx)
	go q.stuckSweeper(ctx)

	return func() {
		cancel()
		q.wg.Wait()
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		q.logger.Printf("jobqueue: all workers stopped")
	}
}

// Enqueue adds a parse job for smsID. While a job for the same SMS is still pending, its id is returned instead.
func (q *Queue) Enqueue(ctx context.Context, smsID uint, opts EnqueueOptions) (string, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:               uuid.New().String(),
		SmsID:            smsID,
		Status:           JobStatusWaiting,
		MaxAttempts:      q.cfg.MaxAttempts,
		RemoveOnComplete: opts.RemoveOnComplete,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	dedupeKey := q.keys.dedupe(smsID)
	ok, err := q.client.SetNX(ctx, dedupeKey, job.ID, q.cfg.JobTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to reserve job for sms %d: %w", smsID, err)
	}
	if !ok {
		existingID, err := q.client.Get(ctx, dedupeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("failed to read job reservation for sms %d: %w", smsID, err)
		}
		if existingID != "" {
			existing, err := q.GetJob(ctx, existingID)
			if err == nil && existing != nil && existing.pending() {
				return existingID, nil
			}
		}
		// Stale reservation: the job it points at is gone or finished
		if err := q.client.Set(ctx, dedupeKey, job.ID, q.cfg.JobTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to reserve job for sms %d: %w", smsID, err)
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, q.cfg.JobTTL)
	pipe.LPush(ctx, q.keys.waiting, job.ID)
	pipe.HIncrBy(ctx, q.keys.stats, "enqueued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID, nil
}

func (j *Job) pending() bool {
	return j.Status == JobStatusWaiting || j.Status == JobStatusActive || j.Status == JobStatusDelayed
}

// GetJob retrieves a job by ID; a missing job is (nil, nil)
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, q.keys.job(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Overview returns list sizes and lifetime counters
func (q *Queue) Overview(ctx context.Context) (*Overview, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.keys.waiting)
	active := pipe.LLen(ctx, q.keys.active)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	completed := pipe.LLen(ctx, q.keys.completed)
	failed := pipe.LLen(ctx, q.keys.failed)
	stats := pipe.HGetAll(ctx, q.keys.stats)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read queue overview: %w", err)
	}

	totals := make(map[string]int64)
	for k, v := range stats.Val() {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			totals[k] = n
		}
	}

	return &Overview{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Totals:    totals,
	}, nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := q.client.BLMove(ctx, q.keys.waiting, q.keys.active, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Printf("jobqueue: worker %d dequeue: %v", id, err)
			sleepCtx(ctx, time.Second)
			continue
		}

		job, err := q.GetJob(ctx, jobID)
		if err != nil || job == nil {
			if err != nil {
				q.logger.Printf("jobqueue: worker %d load job %s: %v", id, jobID, err)
			}
			q.client.LRem(ctx, q.keys.active, 1, jobID)
			continue
		}

		q.runJob(ctx, job)
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job) {
	now := time.Now().UTC()
	job.Attempts++
	job.Status = JobStatusActive
	job.StartedAt = &now
	job.RunAt = nil
	job.UpdatedAt = now
	q.saveJob(ctx, job)

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	err := q.safeProcess(jobCtx, job)
	cancel()

	// Bookkeeping must survive shutdown of the worker context
	bg := context.WithoutCancel(ctx)

	if err == nil {
		q.complete(bg, job)
		return
	}

	job.LastError = err.Error()
	if job.IsRetryable(err) {
		q.retry(bg, job)
		return
	}
	q.fail(bg, job, err)
}

func (q *Queue) safeProcess(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in processor: %v", r)
		}
	}()
	return q.processor.Process(ctx, job.SmsID, job.Attempts)
}

func (q *Queue) complete(ctx context.Context, job *Job) {
	now := time.Now().UTC()
	job.Status = JobStatusCompleted
	job.FinishedAt = &now
	job.UpdatedAt = now
	job.LastError = ""

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keys.active, 1, job.ID)
	pipe.HIncrBy(ctx, q.keys.stats, string(JobStatusCompleted), 1)
	if job.RemoveOnComplete {
		pipe.Del(ctx, q.keys.job(job.ID))
	} else {
		if data, err := json.Marshal(job); err == nil {
			pipe.Set(ctx, q.keys.job(job.ID), data, q.cfg.JobTTL)
		}
		pipe.LPush(ctx, q.keys.completed, job.ID)
		pipe.LTrim(ctx, q.keys.completed, 0, q.cfg.CompletedRetention-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Printf("jobqueue: complete job %s: %v", job.ID, err)
	}
	q.release(ctx, job)
}

func (q *Queue) retry(ctx context.Context, job *Job) {
	delay := Backoff(q.cfg.BackoffBase, job.Attempts)
	runAt := time.Now().UTC().Add(delay)
	job.Status = JobStatusDelayed
	job.RunAt = &runAt
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Printf("jobqueue: marshal job %s: %v", job.ID, err)
		return
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, q.cfg.JobTTL)
	pipe.LRem(ctx, q.keys.active, 1, job.ID)
	pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
	pipe.HIncrBy(ctx, q.keys.stats, "retried", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Printf("jobqueue: schedule retry for job %s: %v", job.ID, err)
		return
	}

	q.logger.Printf("jobqueue: sms %d attempt %d/%d failed, retrying in %s: %s", job.SmsID, job.Attempts, job.MaxAttempts, delay, job.LastError)
}

func (q *Queue) fail(ctx context.Context, job *Job, cause error) {
	now := time.Now().UTC()
	job.Status = JobStatusFailed
	job.FinishedAt = &now
	job.UpdatedAt = now

	pipe := q.client.TxPipeline()
	if data, err := json.Marshal(job); err == nil {
		pipe.Set(ctx, q.keys.job(job.ID), data, q.cfg.JobTTL)
	}
	pipe.LRem(ctx, q.keys.active, 1, job.ID)
	pipe.LPush(ctx, q.keys.failed, job.ID)
	pipe.LTrim(ctx, q.keys.failed, 0, q.cfg.CompletedRetention-1)
	pipe.HIncrBy(ctx, q.keys.stats, string(JobStatusFailed), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Printf("jobqueue: fail job %s: %v", job.ID, err)
	}
	q.release(ctx, job)

	q.logger.Printf("jobqueue: sms %d gave up after %d attempts: %v", job.SmsID, job.Attempts, cause)
	q.processor.OnExhausted(ctx, job.SmsID, cause)
}

func (q *Queue) release(ctx context.Context, job *Job) {
	if err := releaseDedupe.Run(ctx, q.client, []string{q.keys.dedupe(job.SmsID)}, job.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		q.logger.Printf("jobqueue: release reservation for sms %d: %v", job.SmsID, err)
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		q.logger.Printf("jobqueue: marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, q.keys.job(job.ID), data, q.cfg.JobTTL).Err(); err != nil {
		q.logger.Printf("jobqueue: update job %s: %v", job.ID, err)
	}
}

// promoter moves due delayed jobs back to waiting
func (q *Queue) promoter(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				q.logger.Printf("jobqueue: promote delayed jobs: %v", err)
			}
		}
	}
}

// PromoteDue moves delayed jobs whose run time is at or before now into waiting
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.keys.delayed, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue // another instance got it
		}
		if job, err := q.GetJob(ctx, id); err == nil && job != nil {
			job.Status = JobStatusWaiting
			job.UpdatedAt = time.Now().UTC()
			q.saveJob(ctx, job)
		}
		if err := q.client.LPush(ctx, q.keys.waiting, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// stuckSweeper requeues jobs left in active by a crashed worker
func (q *Queue) stuckSweeper(ctx context.Context) {
	defer q.wg.Done()

	interval := q.cfg.StuckAfter / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.RecoverStuck(ctx, time.Now()); err != nil && ctx.Err() == nil {
				q.logger.Printf("jobqueue: sweep stuck jobs: %v", err)
			}
		}
	}
}

// RecoverStuck moves active jobs started more than StuckAfter before now back to waiting
func (q *Queue) RecoverStuck(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, q.keys.active, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job == nil || job.Status != JobStatusActive {
			// Job data missing or stale entry
			q.client.LRem(ctx, q.keys.active, 1, id)
			continue
		}

		started := job.UpdatedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if now.Sub(started) <= q.cfg.StuckAfter {
			continue
		}

		q.logger.Printf("jobqueue: recovering stuck job %s for sms %d (age %s)", job.ID, job.SmsID, now.Sub(started))
		job.Status = JobStatusWaiting
		job.LastError = "recovered by sweeper"
		job.UpdatedAt = now.UTC()
		q.saveJob(ctx, job)

		removed, err := q.client.LRem(ctx, q.keys.active, 1, id).Result()
		if err != nil {
			return recovered, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.keys.waiting, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
