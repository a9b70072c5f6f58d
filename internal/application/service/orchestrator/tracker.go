package orchestrator

import (
	"container/list"
	"sync"
	"time"
)

// trackerCapacity bounds in-memory task tracking; Postgres remains the
// authoritative store once a task ages out of this cache (§9 open
// question (a)).
const trackerCapacity = 1000

// trackerTTL is how long an entry survives without being touched.
const trackerTTL = 2 * time.Hour

// TaskProgress mirrors the original's self.tasks[task_id] in-process
// tracking dict, kept here as a fast-path cache in front of the
// research_tasks table.
type TaskProgress struct {
	TaskID         string
	Status         string
	Progress       int
	CurrentStep    string
	StepsCompleted []string
	Warnings       []string
	Errors         []string
}

type trackerEntry struct {
	taskID     string
	progress   TaskProgress
	lastTouch  time.Time
}

// TaskTracker is a bounded LRU, TTL-expiring cache of in-flight task
// progress, read by status-polling handlers without a database round
// trip.
type TaskTracker struct {
	mu       sync.Mutex
	order    *list.List
	elements map[string]*list.Element
}

func NewTaskTracker() *TaskTracker {
	return &TaskTracker{order: list.New(), elements: make(map[string]*list.Element)}
}

func (t *TaskTracker) Set(taskID string, progress TaskProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.elements[taskID]; ok {
		el.Value.(*trackerEntry).progress = progress
		el.Value.(*trackerEntry).lastTouch = time.Now()
		t.order.MoveToFront(el)
		return
	}

	el := t.order.PushFront(&trackerEntry{taskID: taskID, progress: progress, lastTouch: time.Now()})
	t.elements[taskID] = el

	for t.order.Len() > trackerCapacity {
		t.evictOldest()
	}
}

func (t *TaskTracker) Get(taskID string) (TaskProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.elements[taskID]
	if !ok {
		return TaskProgress{}, false
	}
	entry := el.Value.(*trackerEntry)
	if time.Since(entry.lastTouch) > trackerTTL {
		t.order.Remove(el)
		delete(t.elements, taskID)
		return TaskProgress{}, false
	}
	return entry.progress, true
}

func (t *TaskTracker) Delete(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.elements[taskID]; ok {
		t.order.Remove(el)
		delete(t.elements, taskID)
	}
}

func (t *TaskTracker) evictOldest() {
	oldest := t.order.Back()
	if oldest == nil {
		return
	}
	t.order.Remove(oldest)
	delete(t.elements, oldest.Value.(*trackerEntry).taskID)
}
