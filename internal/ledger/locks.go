package ledger

import "sync"

// walletLocks hands out one mutex per wallet. Entries are dropped once no
// goroutine holds or waits on them.
type walletLocks struct {
	mu    sync.Mutex
	locks map[string]*walletLock
}

type walletLock struct {
	sync.Mutex
	refs int
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[string]*walletLock)}
}

// lock blocks until the caller owns userID's wallet and returns the release func.
func (w *walletLocks) lock(userID string) func() {
	w.mu.Lock()
	l, ok := w.locks[userID]
	if !ok {
		l = &walletLock{}
		w.locks[userID] = l
	}
	l.refs++
	w.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, userID)
		}
		w.mu.Unlock()
	}
}

func (w *walletLocks) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locks)
}
