package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/passgate/internal/model"
)

// ResponseBody はJSON APIの統一レスポンス形式。
// 成功・失敗ともにsuccessとmessageを返す。失敗時のみcodeを含む。
type ResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON は任意の値をJSONで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteSuccessResponse は {success:true, message} を書き込む。
func WriteSuccessResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ResponseBody{Success: true, Message: message})
}

// WriteErrorResponse は {success:false, message, code} を書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, statusCode, ResponseBody{
		Success: false,
		Message: apiErr.Message,
		Code:    apiErr.Code,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
