package payment

import "sync"

// keyedMutex はキー単位の排他ロックを提供する。
// 同一paymentIDに対する並行コールバック処理を直列化するために使用する。
// 異なるキー同士は互いにブロックしない。
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

// newKeyedMutex はkeyedMutexを生成する。
func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		entries: make(map[string]*keyedMutexEntry),
	}
}

// Lock は指定キーのロックを取得する。
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock は指定キーのロックを解放する。
// 参照がなくなったエントリはマップから削除し、メモリリークを防ぐ。
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
