package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind は上流呼び出しの失敗の種別。
type Kind int

const (
	// KindUpstreamStatus は上流が2xx以外のステータスを返したことを表す。
	KindUpstreamStatus Kind = iota + 1
	// KindUnreachable は上流に到達できなかったことを表す（接続エラー、タイムアウト、DNS解決失敗）。
	KindUnreachable
	// KindInvalidResponse は上流が2xxを返したがボディがJSONでないことを表す。
	KindInvalidResponse
	// KindResponseTooLarge は上流のレスポンスボディが上限を超えたことを表す。
	KindResponseTooLarge
)

// String は種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindUpstreamStatus:
		return "upstream_status"
	case KindUnreachable:
		return "unreachable"
	case KindInvalidResponse:
		return "invalid_response"
	case KindResponseTooLarge:
		return "response_too_large"
	default:
		return "unknown"
	}
}

// 種別ごとの番兵エラー。errors.Is で *Error の種別を判定できる。
var (
	ErrUpstreamStatus   = errors.New("上流APIがエラーステータスを返しました")
	ErrUnreachable      = errors.New("上流APIに接続できません")
	ErrInvalidResponse  = errors.New("上流APIのレスポンスが不正です")
	ErrResponseTooLarge = errors.New("上流APIのレスポンスが大きすぎます")
)

// Error は上流呼び出しの失敗を表す。
type Error struct {
	// Kind は失敗の種別。
	Kind Kind
	// Method はHTTPメソッド。
	Method string
	// Path は上流のパス。
	Path string
	// StatusCode は上流のステータスコード。KindUnreachableの場合は0。
	StatusCode int
	// Body は上流のレスポンスボディ。KindUpstreamStatusの場合のみ設定される。
	Body []byte
	// Err は原因となったエラー。
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUpstreamStatus:
		return fmt.Sprintf("%s %s: status=%d", e.Method, e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別に対応する番兵エラーとの比較を行う。
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUpstreamStatus:
		return e.Kind == KindUpstreamStatus
	case ErrUnreachable:
		return e.Kind == KindUnreachable
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	case ErrResponseTooLarge:
		return e.Kind == KindResponseTooLarge
	}
	return false
}

// HTTPStatus はローカルで返すべきステータスコードを返す。
// 上流のステータスはそのまま、それ以外は500とする。
func (e *Error) HTTPStatus() int {
	if e.Kind == KindUpstreamStatus && e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// StatusOf はerrに対応するローカルのステータスコードを返す。
// *Error 以外のエラーは500とする。
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
