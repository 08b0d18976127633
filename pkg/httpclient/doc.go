// Package httpclient は上流APIと通信するHTTPクライアントを提供する。
//
// ログイン・ユーザー再取得のようにJSONをデコードする呼び出しと、
// ペイロードを一切加工せずに中継するRelayの2種類を持つ。
// 失敗はすべて *Error として返し、種別（上流のステータス・接続不可・不正なレスポンス）
// からローカルのHTTPステータスを決められるようにする。
package httpclient
