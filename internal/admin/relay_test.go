package admin

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/studyadmin/internal/config"
)

// TestRelay は上流APIへの中継を検証する。
func TestRelay(t *testing.T) {
	t.Parallel()

	t.Run("研究一覧が上流のボディのまま返ること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies", nil), ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `[{"id":"s1","name":"Study One"}]` {
			t.Errorf("body = %s", got)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
	})

	t.Run("未認証の場合は上流を呼ばずに401になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := ts.upstream.count("/study/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("上流の404は404ページになること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/s2", nil), ts.login(t))

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if !strings.Contains(w.Body.String(), "404 Not Found") {
			t.Errorf("404ページが描画されていない: %s", w.Body.String())
		}
		if call, _ := ts.upstream.last("/study/get/"); call.Path != "/study/get/s2" {
			t.Errorf("上流のパス = %q, want %q", call.Path, "/study/get/s2")
		}
	})

	t.Run("上流の500は500ページになること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/broken", nil), ts.login(t))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if !strings.Contains(w.Body.String(), "500 Internal Server Error") {
			t.Errorf("500ページが描画されていない: %s", w.Body.String())
		}
	})

	t.Run("ページの無い失敗ステータスは上流のJSONボディと共に返ること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/conflict", nil), ts.login(t))

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
		if got := w.Body.String(); got != `{"detail":"Study is locked"}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("JSONでない失敗レスポンスはステータス文言のJSONになること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/busy", nil), ts.login(t))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if got := w.Body.String(); got != `{"error":"Service Unavailable"}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("上流に接続できない場合は500ページになること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/hangup", nil), ts.login(t))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})

	t.Run("2xxでJSONでないボディは500になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/html", nil), ts.login(t))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if strings.Contains(w.Body.String(), "oops") {
			t.Error("上流のボディがそのまま返された")
		}
	})

	t.Run("IDはパスセグメントとしてエスケープされること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/a%3Fb", nil), ts.login(t))

		call, ok := ts.upstream.last("/study/get/")
		if !ok {
			t.Fatal("上流が呼ばれていない")
		}
		if call.Path != "/study/get/a?b" {
			t.Errorf("上流のパス = %q, want %q", call.Path, "/study/get/a?b")
		}
	})

	t.Run("IDは前後の空白を含めてそのまま上流に送られること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/%20s1", nil), ts.login(t))

		call, ok := ts.upstream.last("/study/get/")
		if !ok {
			t.Fatal("上流が呼ばれていない")
		}
		if call.Path != "/study/get/ s1" {
			t.Errorf("上流のパス = %q, want %q", call.Path, "/study/get/ s1")
		}
	})

	t.Run("空白のみのIDは上流を呼ばずに404ページになること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/%20", nil), ts.login(t))

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := ts.upstream.count("/study/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("スラッシュを含むIDは1つのセグメントとして中継されること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodPost, "/api/dash/studies/results/group/s1", nil), ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `[{"study_id":"group/s1","score":3}]` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("結果一覧はPOSTで中継されること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodPost, "/api/dash/studies/results/s1", nil), ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `[{"study_id":"s1","score":3}]` {
			t.Errorf("body = %s", got)
		}
		if call, _ := ts.upstream.last("/result/"); call.Method != http.MethodPost {
			t.Errorf("上流のメソッド = %q, want POST", call.Method)
		}
	})

	t.Run("削除で上流が空のボディを返した場合は{}になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodDelete, "/api/dash/studies/s1", nil), ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{}` {
			t.Errorf("body = %s, want {}", got)
		}
		if call, _ := ts.upstream.last("/study/delete/"); call.Method != http.MethodDelete || call.Path != "/study/delete/s1" {
			t.Errorf("上流へのリクエスト = %+v", call)
		}
	})
}

// TestRelayWithBody はボディ必須の中継を検証する。
func TestRelayWithBody(t *testing.T) {
	t.Parallel()

	t.Run("作成はボディをそのまま上流に送り2xxを200で返すこと", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		body := `{"name":"New Study","questions":[1,2]}`
		req := httptest.NewRequest(http.MethodPost, "/api/dash/studies", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := ts.serve(req, ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"created":`+body+`}` {
			t.Errorf("body = %s", got)
		}
		if call, _ := ts.upstream.last("/study/upload"); call.Body != body {
			t.Errorf("上流が受け取ったボディ = %s, want %s", call.Body, body)
		}
	})

	t.Run("ボディが無い作成は上流を呼ばずに400になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		w := ts.serve(httptest.NewRequest(http.MethodPost, "/api/dash/studies", nil), ts.login(t))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := w.Body.String(); got != `{"error":"Invalid input: No JSON data provided"}` {
			t.Errorf("body = %s", got)
		}
		if got := ts.upstream.count("/study/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("空の値やJSONでないボディは400になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		cookie := ts.login(t)
		for _, body := range []string{"null", "{}", "[]", `""`, "false", "0", "  ", "{not json", `{"a":1} trailing`} {
			req := httptest.NewRequest(http.MethodPut, "/api/dash/studies/enable", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			w := ts.serve(req, cookie)

			if w.Code != http.StatusBadRequest {
				t.Errorf("body %q: ステータスコード = %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
		if got := ts.upstream.count("/study/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("有効化はPUTで中継されること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPut, "/api/dash/studies/enable", strings.NewReader(`{"id":"s1","enabled":true}`))
		req.Header.Set("Content-Type", "application/json")

		w := ts.serve(req, ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"enabled":true}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("画像アップロードはボディを中継すること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		body := `{"image":"iVBORw0KGgo="}`
		req := httptest.NewRequest(http.MethodPost, "/api/dash/studies/images", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := ts.serve(req, ts.login(t))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if call, _ := ts.upstream.last("/study/upload-base64-image"); call.Body != body {
			t.Errorf("上流が受け取ったボディ = %s, want %s", call.Body, body)
		}
	})

	t.Run("上限を超えるボディは上流を呼ばずに400になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t, func(cfg *config.Config) {
			cfg.MaxBodyBytes = 16
		})
		req := httptest.NewRequest(http.MethodPost, "/api/dash/studies/images", strings.NewReader(`{"image":"`+strings.Repeat("A", 64)+`"}`))
		req.Header.Set("Content-Type", "application/json")

		w := ts.serve(req, ts.login(t))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := ts.upstream.count("/study/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})
}

// relayRoute は中継ルートの1件。
type relayRoute struct {
	operation string
	method    string
	path      string
	body      string
}

// relayRoutes はすべての中継ルート。
var relayRoutes = []relayRoute{
	{operation: "list-all", method: http.MethodGet, path: "/api/dash/studies"},
	{operation: "get-by-id", method: http.MethodGet, path: "/api/dash/studies/s1"},
	{operation: "list-results-for-id", method: http.MethodPost, path: "/api/dash/studies/results/s1"},
	{operation: "create", method: http.MethodPost, path: "/api/dash/studies", body: `{"name":"New Study"}`},
	{operation: "enable", method: http.MethodPut, path: "/api/dash/studies/enable", body: `{"id":"s1"}`},
	{operation: "delete-by-id", method: http.MethodDelete, path: "/api/dash/studies/s1"},
	{operation: "upload-image", method: http.MethodPost, path: "/api/dash/studies/images", body: `{"image":"iVBORw0KGgo="}`},
}

func (r relayRoute) request() *http.Request {
	if r.body == "" {
		return httptest.NewRequest(r.method, r.path, nil)
	}
	req := httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestRelayAllRoutes はすべての中継ルートに共通する振る舞いを検証する。
func TestRelayAllRoutes(t *testing.T) {
	t.Parallel()

	t.Run("未認証の場合はどのルートも上流を呼ばずに401になること", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		for _, r := range relayRoutes {
			w := ts.serve(r.request())

			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", r.operation, w.Code, http.StatusUnauthorized)
			}
		}
		if got := ts.upstream.count("/"); got != 0 {
			t.Errorf("上流呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("上流の失敗ステータスはどのルートでも同じステータスで返ること", func(t *testing.T) {
		t.Parallel()

		for _, status := range []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusServiceUnavailable} {
			ts := newTestServer(t)
			ts.upstream.failWith(status)
			cookie := ts.login(t)

			for _, r := range relayRoutes {
				w := ts.serve(r.request(), cookie)

				if w.Code != status {
					t.Errorf("%s: ステータスコード = %d, want %d", r.operation, w.Code, status)
				}
				if got := w.Body.String(); got != `{"detail":"upstream failure"}` {
					t.Errorf("%s: body = %s", r.operation, got)
				}
			}
			if got := ts.upstream.count("/study/") + ts.upstream.count("/result/"); got != len(relayRoutes) {
				t.Errorf("status %d: 上流呼び出し回数 = %d, want %d", status, got, len(relayRoutes))
			}
		}
	})

	t.Run("上流の401と404と500はどのルートでもエラーページになること", func(t *testing.T) {
		t.Parallel()

		pages := map[int]string{
			http.StatusUnauthorized:        "401 Unauthorized",
			http.StatusNotFound:            "404 Not Found",
			http.StatusInternalServerError: "500 Internal Server Error",
		}
		for status, title := range pages {
			ts := newTestServer(t)
			ts.upstream.failWith(status)
			cookie := ts.login(t)

			for _, r := range relayRoutes {
				w := ts.serve(r.request(), cookie)

				if w.Code != status {
					t.Errorf("%s: ステータスコード = %d, want %d", r.operation, w.Code, status)
				}
				if !strings.Contains(w.Body.String(), title) {
					t.Errorf("%s: %sページが描画されていない: %s", r.operation, title, w.Body.String())
				}
			}
		}
	})
}

// TestRelayFailureLog は中継失敗時のログを検証する。
// slog.Defaultを差し替えるため並列実行しない。
func TestRelayFailureLog(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ts := newTestServer(t)
	w := ts.serve(httptest.NewRequest(http.MethodGet, "/api/dash/studies/conflict", nil), ts.login(t))
	if w.Code != http.StatusConflict {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
	}

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("ログがJSONではない: %s", line)
		}
		if rec["msg"] != "上流APIの呼び出しに失敗" {
			continue
		}
		found = true
		if rec["operation"] != "get-by-id" {
			t.Errorf("operation = %v, want get-by-id", rec["operation"])
		}
		if rec["user_id"] != "42" {
			t.Errorf("user_id = %v, want 42", rec["user_id"])
		}
		if rec["level"] != "WARN" {
			t.Errorf("level = %v, want WARN", rec["level"])
		}
	}
	if !found {
		t.Errorf("中継失敗のログが出力されていない: %s", buf.String())
	}
}

// TestHasJSONData はhasJSONData関数を検証する。
func TestHasJSONData(t *testing.T) {
	t.Parallel()

	t.Run("空でないJSON値はtrueになること", func(t *testing.T) {
		t.Parallel()

		for _, body := range []string{`{"a":1}`, `[0]`, `"x"`, `true`, `1`, `-0.5`, ` {"a":null} `} {
			if !hasJSONData([]byte(body)) {
				t.Errorf("hasJSONData(%q) = false, want true", body)
			}
		}
	})

	t.Run("空の値はfalseになること", func(t *testing.T) {
		t.Parallel()

		for _, body := range []string{``, `null`, `{}`, `[]`, `""`, `false`, `0`, `0.0`, `{`} {
			if hasJSONData([]byte(body)) {
				t.Errorf("hasJSONData(%q) = true, want false", body)
			}
		}
	})
}
