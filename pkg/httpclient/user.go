package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nao1215/studyadmin/pkg/identity"
)

// credentials はログインエンドポイントに送る資格情報。
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login は資格情報を上流APIに送り、成功した場合はユーザー情報を返す。
func (c *Client) Login(ctx context.Context, username, password string) (identity.Identity, error) {
	var raw json.RawMessage
	if err := c.PostJSON(ctx, "/login/", credentials{Username: username, Password: password}, &raw); err != nil {
		return identity.Identity{}, err
	}
	return decodeIdentity(http.MethodPost, "/login/", raw)
}

// LookupUser はユーザーIDから上流APIのユーザー情報を取得する。
func (c *Client) LookupUser(ctx context.Context, userID string) (identity.Identity, error) {
	path := "/login/" + url.PathEscape(userID)

	var raw json.RawMessage
	if err := c.GetJSON(ctx, path, &raw); err != nil {
		return identity.Identity{}, err
	}
	return decodeIdentity(http.MethodGet, path, raw)
}

func decodeIdentity(method, path string, raw json.RawMessage) (identity.Identity, error) {
	ident, err := identity.Decode(raw)
	if err != nil {
		return identity.Identity{}, &Error{
			Kind:       KindInvalidResponse,
			Method:     method,
			Path:       path,
			StatusCode: http.StatusOK,
			Err:        err,
		}
	}
	return ident, nil
}
