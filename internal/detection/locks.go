package detection

import "sync"

// LockTable hands out one mutex per camera. Creation is atomic, so two
// callers asking for the same new camera get the same lock.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *LockTable) Get(cameraID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[cameraID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[cameraID] = l
	}
	return l
}
