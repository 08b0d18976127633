// Package middleware は管理画面のGinルーターで使用する共通ミドルウェアを提供する。
//
// セッションクッキーからの認証情報の復元、認証必須ルートの保護、
// リクエストログ、パニックリカバリ、CORS、ログイン試行の流量制限、
// CSRFトークンの検証などを含む。
package middleware
