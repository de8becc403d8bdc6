// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 運用APIのレスポンスに含める原因カテゴリと対処方法を持つ。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, system
	Action   string // 対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeFeedNotStopped       = "FEED_NOT_STOPPED"
	ErrCodeFeedStopped          = "FEED_STOPPED"
	ErrCodeUpdateInProgress     = "UPDATE_IN_PROGRESS"
	ErrCodeInvalidID            = "INVALID_ID"
)

// NewSubscriptionNotFoundError は購読が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された購読が見つかりません: %s", subscriptionID),
		Category: "feed",
		Action:   "購読IDを確認してください。",
	}
}

// NewFeedNotStoppedError はフィードが停止状態でない場合のエラーを生成する。
// 停止していない購読へのリトライは存在しない購読と同じく404で返す。
func NewFeedNotStoppedError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotStopped,
		Message:  fmt.Sprintf("購読は停止中ではありません: %s", subscriptionID),
		Category: "feed",
		Action:   "リトライはフェッチが停止している購読に対してのみ実行できます。",
	}
}

// NewFeedStoppedError は停止中の購読に即時更新を要求した場合のエラーを生成する。
func NewFeedStoppedError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedStopped,
		Message:  fmt.Sprintf("購読は停止中です: %s", subscriptionID),
		Category: "feed",
		Action:   "停止中の購読はリトライで再開してください。",
	}
}

// NewUpdateInProgressError は更新処理中の購読に即時更新を要求した場合のエラーを生成する。
func NewUpdateInProgressError(subscriptionID string) *APIError {
	return &APIError{
		Code:     ErrCodeUpdateInProgress,
		Message:  fmt.Sprintf("購読は更新処理中です: %s", subscriptionID),
		Category: "feed",
		Action:   "更新の完了を待ってから再度お試しください。",
	}
}

// NewInvalidIDError は不正なIDが指定された場合のエラーを生成する。
func NewInvalidIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効なIDです: %s", id),
		Category: "validation",
		Action:   "UUID形式のIDを指定してください。",
	}
}

// ErrNotStopped は停止していない購読をリトライしようとした場合のエラー。
var ErrNotStopped = errors.New("subscription is not stopped")

// ErrInProgress は更新処理中の購読に対する操作を拒否する場合のエラー。
var ErrInProgress = errors.New("subscription update is in progress")

// ErrStopped は停止中の購読に対する操作を拒否する場合のエラー。
var ErrStopped = errors.New("subscription is stopped")

// NotFoundError は参照先のレコードが存在しないことを表す。
// リトライ対象にはならない。
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidFeedError はフィードの取得またはパースに失敗したことを表す。
// 通信エラー、非2xxレスポンス、解析不能な文書のいずれもこのエラーになる。
type InvalidFeedError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InvalidFeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid feed %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid feed %s: %s", e.URL, e.Reason)
}

func (e *InvalidFeedError) Unwrap() error {
	return e.Err
}

// ValidationError は永続化前または永続化時の制約違反を表す。
// 必須項目の欠落や一意制約違反が該当する。
type ValidationError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsNotFound はerrがNotFoundErrorを含むかを返す。
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation はerrがValidationErrorを含むかを返す。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
