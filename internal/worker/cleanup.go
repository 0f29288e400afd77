package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// StorageCleanupArgs lists storage objects to delete.
type StorageCleanupArgs struct {
	Keys []string `json:"keys"`
}

func (StorageCleanupArgs) Kind() string { return "storage_cleanup" }

func (StorageCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// Deleter removes one object; deleting a missing object must not fail.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

type StorageCleanupWorker struct {
	river.WorkerDefaults[StorageCleanupArgs]
	store Deleter
	log   *slog.Logger
}

func NewStorageCleanupWorker(store Deleter, log *slog.Logger) *StorageCleanupWorker {
	if log == nil {
		log = slog.Default()
	}
	return &StorageCleanupWorker{store: store, log: log}
}

// Work deletes every key and reports all failures together, so River
// retries the job; already-deleted keys are no-ops on retry.
func (w *StorageCleanupWorker) Work(ctx context.Context, job *river.Job[StorageCleanupArgs]) error {
	var errs []error
	for _, key := range job.Args.Keys {
		if err := w.store.Delete(ctx, key); err != nil {
			w.log.Warn("delete storage object", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// InsertFunc enqueues a job. Provided by main as a closure over river.Client.Insert.
type InsertFunc func(ctx context.Context, args river.JobArgs) error

// CleanupQueue schedules storage cleanup jobs.
type CleanupQueue struct {
	insert InsertFunc
}

func NewCleanupQueue(insert InsertFunc) *CleanupQueue {
	return &CleanupQueue{insert: insert}
}

// EnqueueCleanup schedules deletion of the given keys. Empty keys are dropped.
func (q *CleanupQueue) EnqueueCleanup(ctx context.Context, keys ...string) error {
	kept := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return q.insert(ctx, StorageCleanupArgs{Keys: kept})
}
