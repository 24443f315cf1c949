package workflow

import "sync"

// InstanceLocker serializes writers per workflow instance inside one process.
// It never blocks: a second writer is refused instead of queued.
type InstanceLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewInstanceLocker creates an empty locker
func NewInstanceLocker() *InstanceLocker {
	return &InstanceLocker{held: make(map[int64]struct{})}
}

// TryLock acquires the lock for id. The returned func releases it and is safe to call once.
func (l *InstanceLocker) TryLock(id int64) (unlock func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true
}

// Held returns the number of instances currently locked
func (l *InstanceLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
