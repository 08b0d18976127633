package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/studyadmin/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// SQLiteStore はSQLiteにセッション参照を保存するStore。
// プロセスを再起動してもログイン状態を維持したい場合に使う。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite はpathのSQLiteデータベースを開き、SQLiteStoreを生成する。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore は既存のDB接続からSQLiteStoreを生成し、スキーマを適用する。
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Create はユーザーIDに対する新しいセッションを作成する。
// 作成時に期限切れのセッションをまとめて削除する。
func (s *SQLiteStore) Create(ctx context.Context, userID string, ttl time.Duration) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("session: ユーザーIDが空です")
	}

	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now.Truncate(time.Second),
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.Unix()); err != nil {
		return Record{}, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.UserID, rec.CreatedAt.Unix(), rec.ExpiresAt.Unix(),
	); err != nil {
		return Record{}, fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return rec, nil
}

// Get はセッションを取得する。
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec       Record
		createdAt int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?", id,
	).Scan(&rec.ID, &rec.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("セッションの取得に失敗: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	if rec.Expired(s.now()) {
		return Record{}, ErrExpired
	}
	return rec, nil
}

// Delete はセッションを削除する。
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	return nil
}

// Close はDB接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
