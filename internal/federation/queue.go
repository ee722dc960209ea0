package federation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DeliveryTask describes one pending outbound push for a remote inbox owner.
// Tasks survive process restarts when a durable queue backend is configured.
type DeliveryTask struct {
	EntryID  string `json:"entryId"`
	OwnerID  string `json:"ownerId"`
	Kind     string `json:"kind"`
	ObjectID string `json:"objectId"`
}

type DeliveryQueue interface {
	TryEnqueue(task DeliveryTask) bool
	Enqueue(ctx context.Context, task DeliveryTask) bool
	Dequeue(ctx context.Context) (DeliveryTask, bool)
	Depth() int
	Capacity() int
	Close() error
}

type memoryDeliveryQueue struct {
	capacity     int
	pollInterval time.Duration
	mu           sync.Mutex
	items        []DeliveryTask
}

func NewMemoryDeliveryQueue(capacity int) DeliveryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &memoryDeliveryQueue{
		capacity:     capacity,
		pollInterval: 10 * time.Millisecond,
		items:        []DeliveryTask{},
	}
}

func (q *memoryDeliveryQueue) TryEnqueue(task DeliveryTask) bool {
	if strings.TrimSpace(task.EntryID) == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, task)
	return true
}

func (q *memoryDeliveryQueue) Enqueue(ctx context.Context, task DeliveryTask) bool {
	for {
		if q.TryEnqueue(task) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *memoryDeliveryQueue) Dequeue(ctx context.Context) (DeliveryTask, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return DeliveryTask{}, false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *memoryDeliveryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *memoryDeliveryQueue) Capacity() int {
	return q.capacity
}

func (q *memoryDeliveryQueue) Close() error {
	return nil
}

// NewDeliveryQueue selects a queue backend by name. "memory" is the default;
// "file" takes a path in dsn, "postgres" a connection string. Both durable
// backends keep tasks across restarts.
func NewDeliveryQueue(backend, dsn string, capacity int) (DeliveryQueue, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewMemoryDeliveryQueue(capacity), nil
	case "file":
		return NewFileDeliveryQueue(strings.TrimPrefix(strings.TrimSpace(dsn), "file://"), capacity)
	case "postgres":
		return NewPostgresDeliveryQueue(dsn, capacity)
	default:
		return nil, ErrInvalidInput
	}
}
