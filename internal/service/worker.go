package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/util"
)

// MessageKind identifies a worker message
type MessageKind string

const (
	SnapshotReady MessageKind = "snapshot_ready"
	CoverProgress MessageKind = "cover_progress"
	CoversDone    MessageKind = "covers_done"
	Failed        MessageKind = "failed"
)

// DefaultQueueSize is the message buffer of NewWorker
const DefaultQueueSize = 64

// Message is posted by the worker for the UI owner to apply on its own
// goroutine
type Message struct {
	Kind MessageKind

	// SnapshotReady
	Items  int
	Source collection.Source

	// CoverProgress
	Current    int
	Total      int
	Downloaded int
	Skipped    int

	// CoversDone
	Result covers.Result

	// Failed
	Err error
}

// Worker runs collection loads and cover downloads off the UI goroutine and
// reports through a single buffered queue. Progress ticks are dropped when
// the queue is full; other messages evict the oldest queued ones, so the
// newest outcome is always delivered and a job never blocks on the UI.
type Worker struct {
	svc      *CollectionService
	messages chan Message
	running  atomic.Bool
	dropped  atomic.Int64
	wg       sync.WaitGroup
}

// NewWorker creates a worker with a queue of queueSize messages
func NewWorker(svc *CollectionService, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		svc:      svc,
		messages: make(chan Message, queueSize),
	}
}

// Messages returns the queue. It is never closed.
func (w *Worker) Messages() <-chan Message {
	return w.messages
}

// Drain returns every queued message without blocking
func (w *Worker) Drain() []Message {
	var msgs []Message
	for {
		select {
		case msg := <-w.messages:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// Running reports whether a job is in progress
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Dropped returns how many messages were dropped or evicted on a full queue
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

// Wait blocks until the current job has finished
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Load loads the collection in the background and posts SnapshotReady.
// It returns util.ErrBusy if a job is already running.
func (w *Worker) Load(ctx context.Context, forceRefresh bool) error {
	return w.start(func() {
		w.load(ctx, forceRefresh)
	})
}

// Sync loads the collection and then downloads missing covers, the first
// prewarmCount with per-item progress. It posts SnapshotReady, a series of
// CoverProgress and CoversDone. It returns util.ErrBusy if a job is already
// running.
func (w *Worker) Sync(ctx context.Context, forceRefresh bool, prewarmCount int) error {
	return w.start(func() {
		if !w.load(ctx, forceRefresh) {
			return
		}
		w.downloadCovers(ctx, prewarmCount)
	})
}

// DownloadCovers downloads missing covers of the current collection
func (w *Worker) DownloadCovers(ctx context.Context, prewarmCount int) error {
	return w.start(func() {
		w.downloadCovers(ctx, prewarmCount)
	})
}

func (w *Worker) start(job func()) error {
	if !w.running.CompareAndSwap(false, true) {
		return util.ErrBusy
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				util.ErrorLog("Background job panicked: %v", r)
				w.post(Message{Kind: Failed, Err: panicError{r}})
			}
		}()
		job()
	}()
	return nil
}

// load returns false if ctx was cancelled before the snapshot was ready
func (w *Worker) load(ctx context.Context, forceRefresh bool) bool {
	items := w.svc.GetCollection(ctx, forceRefresh)
	if err := ctx.Err(); err != nil {
		w.post(Message{Kind: Failed, Err: err})
		return false
	}

	msg := Message{Kind: SnapshotReady, Items: len(items)}
	if snap := w.svc.Snapshot(); snap != nil {
		msg.Source = snap.Source
	}
	w.post(msg)
	return true
}

func (w *Worker) downloadCovers(ctx context.Context, prewarmCount int) {
	res := w.svc.DownloadAllCovers(ctx, func(current, total, downloaded, skipped int) {
		w.tick(Message{
			Kind:       CoverProgress,
			Current:    current,
			Total:      total,
			Downloaded: downloaded,
			Skipped:    skipped,
		})
	}, prewarmCount)

	if removed, err := w.svc.PruneCovers(); err != nil {
		util.WarnLog("Cover prune failed: %v", err)
	} else if removed > 0 {
		util.DebugLog("Pruned %d stale covers", removed)
	}

	w.post(Message{Kind: CoversDone, Result: res})
}

// post queues a message without ever waiting for a consumer: on a full
// queue the oldest queued messages are evicted to make room
func (w *Worker) post(msg Message) {
	for {
		select {
		case w.messages <- msg:
			return
		default:
		}
		select {
		case <-w.messages:
			w.dropped.Add(1)
		default:
		}
	}
}

// tick queues a progress message unless the queue is full
func (w *Worker) tick(msg Message) {
	select {
	case w.messages <- msg:
	default:
		w.dropped.Add(1)
	}
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("background job panicked: %v", e.value)
}
