// Package session はブラウザセッションの参照情報を管理する。
//
// ストアが保持するのはセッションIDとユーザーIDの対応だけで、ユーザー情報そのものは
// 保持しない。ユーザー情報はリクエストごとに上流APIから再取得する。
// セッションIDはHS256で署名したJWTとしてクッキーに格納する。
package session
