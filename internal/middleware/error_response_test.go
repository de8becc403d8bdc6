package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedsync/internal/model"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteAPIError_StatusByCode はドメインのエラーコードが対応するステータスで返ることを検証する。
func TestWriteAPIError_StatusByCode(t *testing.T) {
	const id = "5f0c8b9e-3c1a-4c1e-9a55-3d2b7f1e6a10"
	tests := []struct {
		name       string
		apiErr     *model.APIError
		wantStatus int
	}{
		{"不正なID", model.NewInvalidIDError("x"), http.StatusBadRequest},
		{"存在しない購読", model.NewSubscriptionNotFoundError(id), http.StatusNotFound},
		{"停止していない購読", model.NewFeedNotStoppedError(id), http.StatusNotFound},
		{"停止中の購読", model.NewFeedStoppedError(id), http.StatusConflict},
		{"更新処理中", model.NewUpdateInProgressError(id), http.StatusConflict},
		{"未知のコード", &model.APIError{Code: "UNKNOWN"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/subscriptions/"+id+"/retry", nil)

			WriteAPIError(w, r, tt.apiErr)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			body := decodeBody(t, w)
			if body.Code != tt.apiErr.Code || body.Message != tt.apiErr.Message || body.Action != tt.apiErr.Action {
				t.Errorf("body = %+v, want fields of %+v", body, tt.apiErr)
			}
		})
	}
}

// TestWriteErrorResponse_IncludesRequestID はRequestIDミドルウェアのIDがレスポンスに含まれることを検証する。
func TestWriteErrorResponse_IncludesRequestID(t *testing.T) {
	h := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, r, model.NewInvalidIDError("x"))
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/subscriptions/x", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if body := decodeBody(t, w); body.RequestID != "req-42" {
		t.Errorf("request_id = %q, want %q", body.RequestID, "req-42")
	}
}

// TestWriteErrorResponse_OmitsEmptyRequestID はRequestIDがない場合にフィールドを出力しないことを検証する。
func TestWriteErrorResponse_OmitsEmptyRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusBadRequest, &model.APIError{
		Code:     "CODE",
		Message:  "MSG",
		Category: "CAT",
		Action:   "ACT",
	})

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	if _, ok := raw["request_id"]; ok {
		t.Errorf("request_id should be omitted: %v", raw)
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}
