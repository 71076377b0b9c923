package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/orc/internal/store"
	"github.com/randalmurphal/orc/internal/task"
)

const (
	bufferSizeThreshold = 10
	flushInterval       = 5 * time.Second
)

// PersistentPublisher decorates MemoryPublisher with batched persistence to
// the event_log table, preserving real-time broadcast to live subscribers
// while keeping the durable audit trail eventually consistent.
type PersistentPublisher struct {
	inner  *MemoryPublisher
	store  *store.Store
	source string

	buffer   []*task.EventLog
	bufferMu sync.Mutex

	flushTicker *time.Ticker
	stageStarts map[string]time.Time
	startsMu    sync.RWMutex

	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPersistentPublisher constructs a PersistentPublisher. store may be nil
// (tests, or a dry-run engine), in which case events are broadcast but
// never persisted.
func NewPersistentPublisher(st *store.Store, source string, logger *slog.Logger, opts ...PublisherOption) *PersistentPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PersistentPublisher{
		inner:       NewMemoryPublisher(opts...),
		store:       st,
		source:      source,
		buffer:      make([]*task.EventLog, 0, bufferSizeThreshold),
		stageStarts: make(map[string]time.Time),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
	p.flushTicker = time.NewTicker(flushInterval)
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// Publish broadcasts to live subscribers immediately, then buffers the
// event for batched persistence.
func (p *PersistentPublisher) Publish(event Event) {
	p.inner.Publish(event)

	if p.store == nil {
		return
	}

	log := p.eventToLog(event)
	if log == nil {
		return
	}

	p.bufferMu.Lock()
	p.buffer = append(p.buffer, log)
	shouldFlush := len(p.buffer) >= bufferSizeThreshold
	p.bufferMu.Unlock()

	p.trackStageStart(event)

	if shouldFlush || p.isStageCompletion(event) {
		p.flush()
	}
}

func (p *PersistentPublisher) Subscribe(taskID string) <-chan Event { return p.inner.Subscribe(taskID) }
func (p *PersistentPublisher) Unsubscribe(taskID string, ch <-chan Event) {
	p.inner.Unsubscribe(taskID, ch)
}

// Close stops the flush loop, flushes any remainder, and closes the inner
// publisher. Idempotent.
func (p *PersistentPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.flushTicker.Stop()
		p.wg.Wait()
		p.flush()
		p.inner.Close()
	})
}

func (p *PersistentPublisher) flushLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.flushTicker.C:
			p.flush()
		case <-p.stopCh:
			return
		}
	}
}

func (p *PersistentPublisher) flush() {
	p.bufferMu.Lock()
	if len(p.buffer) == 0 {
		p.bufferMu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]*task.EventLog, 0, bufferSizeThreshold)
	p.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, e := range toFlush {
		if err := p.store.AppendEventLog(ctx, e); err != nil {
			p.logger.Error("failed to persist event", "error", err, "task_id", e.TaskID)
		}
	}
}

func (p *PersistentPublisher) eventToLog(e Event) *task.EventLog {
	log := &task.EventLog{
		TaskID:        e.TaskID,
		CorrelationID: e.TaskID,
		EventType:     string(e.Type),
		Source:        task.EventSourceSystem,
		Status:        task.EventStatusSuccess,
		CreatedAt:     e.Time,
	}

	switch data := e.Data.(type) {
	case StageUpdate:
		log.DurationMs = data.DurationMs
		log.ResultText = data.Status
		if data.Error != "" {
			log.Status = task.EventStatusFailed
			log.ResultText = data.Error
		}
		if data.Status == "completed" {
			if start := p.getStageStart(e.TaskID, data.Stage); start != nil {
				log.DurationMs = e.Time.Sub(*start).Milliseconds()
			}
		}
	case GateEvent:
		log.OutputSummary = data.Comment
	case CircuitBreakerEvent:
		log.OutputSummary = data.Reason
		log.Status = task.EventStatusFailed
	case TaskStatusChanged:
		log.ResultText = data.From + " -> " + data.To
	}
	return log
}

func (p *PersistentPublisher) trackStageStart(e Event) {
	su, ok := e.Data.(StageUpdate)
	if !ok || su.Status != "running" {
		return
	}
	key := e.TaskID + ":" + su.Stage
	p.startsMu.Lock()
	p.stageStarts[key] = e.Time
	p.startsMu.Unlock()
}

func (p *PersistentPublisher) getStageStart(taskID, stage string) *time.Time {
	key := taskID + ":" + stage
	p.startsMu.Lock()
	defer p.startsMu.Unlock()
	if t, ok := p.stageStarts[key]; ok {
		delete(p.stageStarts, key)
		return &t
	}
	return nil
}

func (p *PersistentPublisher) isStageCompletion(e Event) bool {
	su, ok := e.Data.(StageUpdate)
	return ok && (su.Status == "completed" || su.Status == "failed")
}
