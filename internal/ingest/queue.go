package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQueueCapacity = 4096
	DefaultPacing        = 500 * time.Millisecond
	DefaultErrorBackoff  = 5 * time.Second
)

var ErrQueueStopped = errors.New("ingestion queue stopped")

// Handler processes one inbound message. A returned error makes the worker
// back off before the next item.
type Handler interface {
	HandleMessage(ctx context.Context, msg *transport.InboundMessage) error
}

type queueItem struct {
	msg  *transport.InboundMessage
	done chan struct{} // closed when processing is complete (for synchronous dispatch)
}

// Queue feeds inbound messages to a single worker so side effects happen
// strictly one message at a time, in arrival order.
type Queue struct {
	inbox   chan queueItem
	handler Handler
	pacing  time.Duration
	backoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	start  sync.Once
}

// NewQueue creates a queue with default capacity, pacing and backoff.
func NewQueue(handler Handler) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		inbox:   make(chan queueItem, DefaultQueueCapacity),
		handler: handler,
		pacing:  DefaultPacing,
		backoff: DefaultErrorBackoff,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithTiming sets the pause after each item and the longer pause after a
// failed item.
func (q *Queue) WithTiming(pacing, backoff time.Duration) *Queue {
	q.pacing = pacing
	q.backoff = backoff
	return q
}

// StartWorker launches the worker goroutine. Calling it again is a no-op.
func (q *Queue) StartWorker() {
	q.start.Do(func() {
		q.wg.Add(1)
		go q.runWorker()
	})
}

// Run starts the worker and stops it when ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.StartWorker()
	select {
	case <-ctx.Done():
	case <-q.ctx.Done():
	}
	log.Info().Int("pending", len(q.inbox)).Msg("stopping ingestion queue")
	q.Stop()
	return nil
}

func (q *Queue) runWorker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			// Drain any remaining messages and signal completion
			for {
				select {
				case item := <-q.inbox:
					if item.done != nil {
						close(item.done)
					}
				default:
					return
				}
			}
		case item := <-q.inbox:
			err := q.processItem(item)
			pause := q.pacing
			if err != nil {
				log.Error().
					Err(err).
					Str("messageId", item.msg.ID).
					Dur("backoff", q.backoff).
					Msg("failed to process message")
				pause = q.backoff
			}
			q.wait(pause)
		}
	}
}

// processItem runs the handler for one item, converting panics into errors.
func (q *Queue) processItem(item queueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("messageId", item.msg.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic in ingestion worker")
			err = fmt.Errorf("panic while processing message: %v", r)
		}
		if item.done != nil {
			close(item.done)
		}
	}()

	return q.handler.HandleMessage(q.ctx, item.msg)
}

func (q *Queue) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.ctx.Done():
	case <-t.C:
	}
}

// Enqueue appends a message. It blocks only when the queue is full.
func (q *Queue) Enqueue(msg *transport.InboundMessage) error {
	return q.send(queueItem{msg: msg})
}

// EnqueueSync appends a message and waits until the worker has processed it.
func (q *Queue) EnqueueSync(msg *transport.InboundMessage) error {
	item := queueItem{msg: msg, done: make(chan struct{})}
	if err := q.send(item); err != nil {
		return err
	}
	<-item.done
	return nil
}

func (q *Queue) send(item queueItem) error {
	select {
	case <-q.ctx.Done():
		return ErrQueueStopped
	default:
	}

	select {
	case q.inbox <- item:
		return nil
	case <-q.ctx.Done():
		return ErrQueueStopped
	}
}

// Len returns the number of messages waiting.
func (q *Queue) Len() int {
	return len(q.inbox)
}

// Stop stops the worker and waits for it to finish. Pending messages are
// discarded.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}
