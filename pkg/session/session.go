package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound はセッションが存在しないことを表す。
	ErrNotFound = errors.New("session: セッションが見つかりません")
	// ErrExpired はセッションの有効期限が切れていることを表す。
	ErrExpired = errors.New("session: セッションの有効期限切れです")
	// ErrInvalidToken はセッションクッキーの署名または形式が不正であることを表す。
	ErrInvalidToken = errors.New("session: セッショントークンが不正です")
)

// Record はセッションIDとユーザーIDの対応を表す。
type Record struct {
	// ID はセッションの一意識別子（UUID）。
	ID string
	// UserID は上流APIにおけるユーザーID。
	UserID string
	// CreatedAt はセッションの作成日時。
	CreatedAt time.Time
	// ExpiresAt はセッションの有効期限。
	ExpiresAt time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store はセッションの保存先。
// 1リクエストあたり読み込み1回、書き込み1回程度の利用を想定する。
type Store interface {
	// Create はユーザーIDに対する新しいセッションを作成する。
	Create(ctx context.Context, userID string, ttl time.Duration) (Record, error)
	// Get はセッションを取得する。期限切れの場合はErrExpiredを返す。
	Get(ctx context.Context, id string) (Record, error)
	// Delete はセッションを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
	// Close はストアが保持するリソースを解放する。
	Close() error
}
