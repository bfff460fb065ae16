package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/internal/queue"
	"taskboard/pkg/logger"
)

// TaskLister reads a user's live tasks.
type TaskLister interface {
	List(ctx context.Context, userID string, f models.FetchFilter) ([]models.Task, error)
}

// ListCache stores serialized task lists.
type ListCache interface {
	SetRaw(ctx context.Context, userID string, b []byte)
}

// Warmer rebuilds a user's cached task list after a change event.
type Warmer struct {
	repo      TaskLister
	cache     ListCache
	processed atomic.Int64
}

func NewWarmer(repo TaskLister, cache ListCache) *Warmer {
	return &Warmer{repo: repo, cache: cache}
}

// Processed returns the number of events handled successfully.
func (w *Warmer) Processed() int64 { return w.processed.Load() }

// Handle re-reads the event's user from the database and caches the
// unfiltered list body that GET /v1/tasks serves.
func (w *Warmer) Handle(ctx context.Context, ev models.TaskEvent) error {
	if ev.UserID == "" {
		return nil
	}
	tasks, err := w.repo.List(ctx, ev.UserID, models.FetchFilter{})
	if err != nil {
		return err
	}
	b, err := json.Marshal(models.TaskList{Tasks: tasks})
	if err != nil {
		return err
	}
	w.cache.SetRaw(ctx, ev.UserID, b)
	w.processed.Add(1)
	logger.Debug(ctx, "Task list re-warmed", "user", ev.UserID, "action", ev.Action, "count", len(tasks))
	return nil
}

// Run starts WorkerPoolSize consumers in one consumer group and blocks until
// ctx is done. Scale further by running more replicas.
func Run(ctx context.Context, w *Warmer) error {
	cfg := config.Get()
	brokers := queue.Brokers()
	if len(brokers) == 0 {
		logger.Info(ctx, "Worker disabled (no Kafka brokers)")
		return nil
	}
	n := cfg.WorkerPoolSize
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  brokers,
				Topic:    queue.Topic(),
				GroupID:  cfg.KafkaGroupID,
				MinBytes: 1,
				MaxBytes: 10e6,
			})
			defer reader.Close()
			consume(logger.With(ctx, "consumer", i), reader, w)
			return nil
		})
	}
	logger.Info(ctx, "Kafka consumers started", "topic", queue.Topic(), "consumers", n)
	return g.Wait()
}

// MessageReader is the subset of *kafka.Reader the consumer loop uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func consume(ctx context.Context, r MessageReader, w *Warmer) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		ev, err := queue.Decode(msg)
		if err == nil {
			err = w.Handle(ctx, ev)
		}
		if err != nil {
			// Commit anyway to avoid poison pill blocking the partition
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
	}
}
