package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// Get は購読を取得する。
	Get(ctx context.Context, id string) (*model.Subscription, error)
	// Retry は停止中の購読を再開し、更新を起動する。
	Retry(ctx context.Context, id string) (*model.Subscription, error)
	// ForceUpdate はスケジュールを待たずに更新を起動する。
	ForceUpdate(ctx context.Context, id string) error
}

// SubscriptionHandler は購読の運用APIのHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// subscriptionResponse は購読の更新状態のAPIレスポンス。
type subscriptionResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Retries   int       `json:"retries"`
	IsStopped bool      `json:"is_stopped"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// forceUpdateResponse は即時更新の受付結果。
type forceUpdateResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:        sub.ID,
		OwnerID:   sub.OwnerID,
		URL:       sub.URL,
		Status:    string(sub.Status),
		Retries:   sub.Retries,
		IsStopped: sub.IsStopped,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

// GetSubscription は購読の更新状態を返す。
// GET /api/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Retry は停止中の購読を再開する。
// 停止中でない購読は存在しない購読と同じく404を返す。
// POST /api/subscriptions/:id/retry
func (h *SubscriptionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Retry(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// ForceUpdate は購読の更新を即座に起動する。
// 更新は非同期に実行されるため、受け付けた時点で202を返す。
// POST /api/subscriptions/:id/force_update
func (h *SubscriptionHandler) ForceUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	if err := h.service.ForceUpdate(r.Context(), id); err != nil {
		handleServiceError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, forceUpdateResponse{ID: id, Accepted: true})
}

// subscriptionID はURLパラメータの購読IDを検証して返す。
func subscriptionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		middleware.WriteAPIError(w, r, model.NewInvalidIDError(id))
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
