package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はプロセス内メモリにセッションを保持するStore。
// 期限切れのエントリは定期的に削除する。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore は新しいMemoryStoreを生成する。
// sweepIntervalごとに期限切れのセッションを削除する。0以下の場合は削除ループを起動しない。
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

// Create はユーザーIDに対する新しいセッションを作成する。
func (s *MemoryStore) Create(_ context.Context, userID string, ttl time.Duration) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("session: ユーザーIDが空です")
	}

	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return rec, nil
}

// Get はセッションを取得する。
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Expired(s.now()) {
		return Record{}, ErrExpired
	}
	return rec, nil
}

// Delete はセッションを削除する。
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Len は保持しているセッション数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close は削除ループを停止する。複数回呼び出しても安全。
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// sweep は期限切れのセッションを削除する。
func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
		}
	}
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
