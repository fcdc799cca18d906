// lockmap is a sharded lock map.
//
// A LockMap behaves as if it held one mutex for every uint64 (an addr.Flatid,
// an inode number, ...). Only locks that are held or waited on take memory;
// ids are spread over NSHARD shards, each with its own mutex.
package lockmap

import (
	"sync"
)

type lockState struct {
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu   *sync.Mutex
	held map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:   new(sync.Mutex),
		held: make(map[uint64]*lockState),
	}
}

func (s *lockShard) acquire(id uint64) {
	s.mu.Lock()
	for {
		state, ok := s.held[id]
		if !ok {
			s.held[id] = &lockState{cond: sync.NewCond(s.mu)}
			break
		}
		// the releaser drops state from the map before waking us, so loop
		// and race the other waiters for a fresh entry
		state.waiters++
		state.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *lockShard) release(id uint64) {
	s.mu.Lock()
	state, ok := s.held[id]
	if !ok {
		s.mu.Unlock()
		panic("lockmap: release of unheld lock")
	}
	delete(s.held, id)
	if state.waiters > 0 {
		state.cond.Broadcast()
	}
	s.mu.Unlock()
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	shards := make([]*lockShard, NSHARD)
	for i := range shards {
		shards[i] = mkLockShard()
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(id uint64) {
	lmap.shards[id%NSHARD].acquire(id)
}

func (lmap *LockMap) Release(id uint64) {
	lmap.shards[id%NSHARD].release(id)
}
