package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/passgate/internal/middleware"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

const pageTitle = "My Website"

// pageData はテンプレートに渡す値。
type pageData struct {
	Title    string
	Identity string
}

// PageHandler はHTMLビューを返すハンドラー。
// ゲート（認証済みのみ・未認証のみ）はルーター側のミドルウェアで適用する。
type PageHandler struct {
	templates *template.Template
}

// NewPageHandler は埋め込みテンプレートを読み込んでPageHandlerを生成する。
func NewPageHandler() (*PageHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &PageHandler{templates: tmpl}, nil
}

// Home はトップページを返す。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, "home.html", pageData{Title: pageTitle})
}

// LoginPage はログインフォームを返す。
// GET /login（未認証のみ）
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", pageData{Title: pageTitle})
}

// Dashboard はログアウトフォーム付きのダッシュボードを返す。
// GET /dashboard（認証済みのみ）
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, "dashboard.html", pageData{
		Title:    pageTitle,
		Identity: middleware.IdentityFromContext(r.Context()),
	})
}

// Static は埋め込みの静的ファイル（ログインスクリプト）を配信するハンドラーを返す。
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画途中で失敗した場合に不完全なHTMLを返さないため。
func (h *PageHandler) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
