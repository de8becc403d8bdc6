package middleware

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedsync/internal/model"
)

// codeInternal は詳細を返さない内部エラーのコード。
const codeInternal = "INTERNAL_ERROR"

// ErrorResponseBody は運用APIエラーレスポンスの統一フォーマット。
// request_idはログとの突き合わせに使う。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

var statusByCode = map[string]int{
	model.ErrCodeInvalidID:            http.StatusBadRequest,
	model.ErrCodeSubscriptionNotFound: http.StatusNotFound,
	model.ErrCodeFeedNotStopped:       http.StatusNotFound,
	model.ErrCodeFeedStopped:          http.StatusConflict,
	model.ErrCodeUpdateInProgress:     http.StatusConflict,
}

// StatusCode はAPIErrorのコードに対応するHTTPステータスを返す。
// 未知のコードは500とする。
func StatusCode(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はコードに対応するステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	WriteErrorResponse(w, r, StatusCode(apiErr), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し元には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusInternalServerError, &model.APIError{
		Code:     codeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "request_idを添えてログを確認してください。",
	})
}
