package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
)

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットのHTTPレスポンスに変換する。
// 停止していない購読のリトライは存在しない購読と同じく404で返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, id string, err error) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		// サービス層が組み立てたものをそのまま返す
	case model.IsNotFound(err):
		apiErr = model.NewSubscriptionNotFoundError(id)
	case errors.Is(err, model.ErrNotStopped):
		apiErr = model.NewFeedNotStoppedError(id)
	case errors.Is(err, model.ErrStopped):
		apiErr = model.NewFeedStoppedError(id)
	case errors.Is(err, model.ErrInProgress):
		apiErr = model.NewUpdateInProgressError(id)
	default:
		// 詳細はログのみに記録する
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("subscription_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w, r)
		return
	}
	middleware.WriteAPIError(w, r, apiErr)
}
