// Package identity はブラウザセッションに紐づく認証済みユーザー情報を提供する。
//
// Identity は上流APIのレスポンスからのみ生成され、ローカルで更新されることはない。
// リクエストごとにコンテキストへ格納され、永続化されない。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid は上流APIのレスポンスからIdentityを構築できないことを表す。
var ErrInvalid = errors.New("identity: 上流のユーザー情報が不正です")

// Identity は認証済みユーザーの最小限の情報。
// 値として受け渡すため、取得側が変更しても元の値には影響しない。
type Identity struct {
	// ID はユーザーの不透明な一意識別子。
	ID string
	// Username はログイン名。
	Username string
	// Email はメールアドレス。
	Email string
	// FirstName は名（任意）。
	FirstName string
	// LastName は姓（任意）。
	LastName string
	// Active はアカウントが有効かどうか。
	Active bool
}

// DisplayName は画面表示用の名前を返す。
// 氏名が無い場合はユーザー名を返す。
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
	if name == "" {
		return i.Username
	}
	return name
}

// payload は上流APIのユーザーJSON。
// password_hash 等の余分なフィールドは読み捨てる。
type payload struct {
	ID        json.RawMessage `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName *string         `json:"first_name"`
	LastName  *string         `json:"last_name"`
	Active    *bool           `json:"active"`
}

// Decode は上流APIのユーザーJSONからIdentityを構築する。
// idは文字列・数値のどちらでも受け付ける。activeが省略された場合は有効とみなす。
func Decode(data []byte) (Identity, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	id, err := decodeID(p.ID)
	if err != nil {
		return Identity{}, err
	}
	if p.Username == "" {
		return Identity{}, fmt.Errorf("%w: usernameがありません", ErrInvalid)
	}

	ident := Identity{
		ID:       id,
		Username: p.Username,
		Email:    p.Email,
		Active:   true,
	}
	if p.FirstName != nil {
		ident.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		ident.LastName = *p.LastName
	}
	if p.Active != nil {
		ident.Active = *p.Active
	}
	return ident, nil
}

// decodeID はJSONの文字列または数値リテラルをIDとして取り出す。
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: idがありません", ErrInvalid)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if s = strings.TrimSpace(s); s == "" {
			return "", fmt.Errorf("%w: idが空です", ErrInvalid)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: idの形式が不正です: %v", ErrInvalid, err)
	}
	return n.String(), nil
}

type contextKey struct{}

// WithIdentity はIdentityを格納したコンテキストを返す。
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext はコンテキストからIdentityを取り出す。
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(Identity)
	return ident, ok
}
