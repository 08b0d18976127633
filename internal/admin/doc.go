// Package admin は研究管理画面のHTTPサーバーを実装する。
//
// ブラウザのセッションを認証し、研究と結果に関するAPI呼び出しを上流APIへ中継し、
// 管理画面のHTMLを描画する。業務データは保持せず、上流APIが唯一の正となる。
package admin
