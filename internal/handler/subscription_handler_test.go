package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
)

const testSubID = "5f0c8b9e-3c1a-4c1e-9a55-3d2b7f1e6a10"

// --- モック定義 ---

// mockSubscriptionService はSubscriptionServiceInterfaceのモック実装。
type mockSubscriptionService struct {
	getFn         func(ctx context.Context, id string) (*model.Subscription, error)
	retryFn       func(ctx context.Context, id string) (*model.Subscription, error)
	forceUpdateFn func(ctx context.Context, id string) error
}

func (m *mockSubscriptionService) Get(ctx context.Context, id string) (*model.Subscription, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSubscriptionService) Retry(ctx context.Context, id string) (*model.Subscription, error) {
	if m.retryFn != nil {
		return m.retryFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSubscriptionService) ForceUpdate(ctx context.Context, id string) error {
	if m.forceUpdateFn != nil {
		return m.forceUpdateFn(ctx, id)
	}
	return nil
}

// serve はchiのURLパラメータを解決してハンドラーを呼び出す。
func serve(t *testing.T, h http.HandlerFunc, method, pattern, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- GET /api/subscriptions/{id} テスト ---

func TestSubscriptionHandler_GetSubscription_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := &mockSubscriptionService{
		getFn: func(ctx context.Context, id string) (*model.Subscription, error) {
			if id != testSubID {
				t.Errorf("id = %q, want %q", id, testSubID)
			}
			return &model.Subscription{
				ID:        testSubID,
				OwnerID:   "owner-1",
				URL:       "https://example.com/feed.xml",
				Status:    model.StatusReady,
				Retries:   2,
				IsStopped: false,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}
	h := NewSubscriptionHandler(svc)

	w := serve(t, h.GetSubscription, http.MethodGet, "/api/subscriptions/{id}", "/api/subscriptions/"+testSubID)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp subscriptionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ID != testSubID || resp.Status != "READY" || resp.Retries != 2 || resp.IsStopped {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSubscriptionHandler_InvalidID_Returns400(t *testing.T) {
	called := false
	svc := &mockSubscriptionService{
		getFn: func(ctx context.Context, id string) (*model.Subscription, error) {
			called = true
			return nil, nil
		},
	}
	h := NewSubscriptionHandler(svc)

	w := serve(t, h.GetSubscription, http.MethodGet, "/api/subscriptions/{id}", "/api/subscriptions/not-a-uuid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeInvalidID {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidID)
	}
	if called {
		t.Error("不正なIDではサービスを呼び出さないべき")
	}
}

// --- エラー変換テスト ---

func TestSubscriptionHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "存在しない購読",
			err:        &model.NotFoundError{Resource: "subscription", ID: testSubID},
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeSubscriptionNotFound,
		},
		{
			name:       "停止していない購読のリトライ",
			err:        model.ErrNotStopped,
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeFeedNotStopped,
		},
		{
			name:       "停止中の購読",
			err:        fmt.Errorf("wrapped: %w", model.ErrStopped),
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeFeedStopped,
		},
		{
			name:       "更新処理中",
			err:        model.ErrInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeUpdateInProgress,
		},
		{
			name:       "APIErrorはそのまま返す",
			err:        model.NewInvalidIDError("x"),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidID,
		},
		{
			name:       "その他のエラーは500",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSubscriptionService{
				retryFn: func(ctx context.Context, id string) (*model.Subscription, error) {
					return nil, tt.err
				},
			}
			h := NewSubscriptionHandler(svc)

			w := serve(t, h.Retry, http.MethodPost, "/api/subscriptions/{id}/retry", "/api/subscriptions/"+testSubID+"/retry")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

// --- POST /api/subscriptions/{id}/retry テスト ---

func TestSubscriptionHandler_Retry_Success(t *testing.T) {
	svc := &mockSubscriptionService{
		retryFn: func(ctx context.Context, id string) (*model.Subscription, error) {
			return &model.Subscription{ID: id, Status: model.StatusReady}, nil
		},
	}
	h := NewSubscriptionHandler(svc)

	w := serve(t, h.Retry, http.MethodPost, "/api/subscriptions/{id}/retry", "/api/subscriptions/"+testSubID+"/retry")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp subscriptionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.IsStopped || resp.Retries != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

// --- POST /api/subscriptions/{id}/force_update テスト ---

func TestSubscriptionHandler_ForceUpdate_Accepted(t *testing.T) {
	var gotID string
	svc := &mockSubscriptionService{
		forceUpdateFn: func(ctx context.Context, id string) error {
			gotID = id
			return nil
		},
	}
	h := NewSubscriptionHandler(svc)

	w := serve(t, h.ForceUpdate, http.MethodPost, "/api/subscriptions/{id}/force_update", "/api/subscriptions/"+testSubID+"/force_update")

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if gotID != testSubID {
		t.Errorf("id = %q, want %q", gotID, testSubID)
	}
	var resp forceUpdateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Accepted || resp.ID != testSubID {
		t.Errorf("resp = %+v", resp)
	}
}
