package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/repository"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler はストアへの疎通を確認するヘルスチェックハンドラー。
type HealthHandler struct {
	pingers map[string]repository.Pinger
}

// NewHealthHandler はHealthHandlerを生成する。pingersのキーはレスポンスに含めるストア名。
func NewHealthHandler(pingers map[string]repository.Pinger) *HealthHandler {
	return &HealthHandler{pingers: pingers}
}

// Health は全ストアの疎通を確認する。
// GET /health 正常時200、いずれかが失敗した場合は503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var failed []string
	for name, p := range h.pingers {
		if err := p.PingContext(ctx); err != nil {
			slog.Warn("health check failed",
				slog.String("store", name),
				slog.String("error", err.Error()),
			)
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
