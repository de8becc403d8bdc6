// Package item は取得した記事をフィードの記事へ反映する。
package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedsync/internal/feed"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/parser"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
)

// Result は記事照合の集計。
type Result struct {
	Created int
	Updated int
	Skipped int // 検証エラーで保存できなかった記事
	Items   []*model.FeedItem
}

// Reconciler は記事を(feed_id, title)で照合して作成または上書きする。
// 記事ごとに独立したトランザクションで処理し、1件の失敗が他の記事の反映を妨げない。
type Reconciler struct {
	store     repository.Store
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(store repository.Store, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Reconcile はentriesをフィードの記事に反映する。
// 検証エラーの記事はログに記録して読み飛ばす。それ以外のエラーはまとめて返すが、
// 反映済みの記事は取り消さない。
func (r *Reconciler) Reconcile(ctx context.Context, f *model.Feed, entries []parser.Entry) (Result, error) {
	var (
		res  Result
		errs []error
	)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		item, created, err := r.reconcileEntry(ctx, f.ID, entry)
		switch {
		case err == nil:
			res.Items = append(res.Items, item)
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		case model.IsValidation(err):
			res.Skipped++
			r.logger.Warn("記事を保存できないため読み飛ばしました",
				slog.String("feed_id", f.ID),
				slog.Int("index", i),
				slog.String("title", entry.Title),
				slog.String("error", err.Error()),
			)
		default:
			errs = append(errs, fmt.Errorf("記事 %q: %w", entry.Title, err))
		}
	}

	r.logger.Info("記事を反映しました",
		slog.String("feed_id", f.ID),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", len(errs)),
	)

	return res, errors.Join(errs...)
}

// reconcileEntry は1件の記事とそのカテゴリを1つのトランザクションで反映する。
func (r *Reconciler) reconcileEntry(ctx context.Context, feedID string, entry parser.Entry) (*model.FeedItem, bool, error) {
	next := r.FromEntry(feedID, entry)
	if next.Title == "" {
		return nil, false, &model.ValidationError{Entity: "feed_item", Field: "title", Reason: "must not be empty"}
	}

	var created bool
	err := r.store.WithTx(ctx, func(q repository.Queries) error {
		existing, err := q.Items().FindByFeedAndTitle(ctx, feedID, next.Title)
		if err != nil {
			return fmt.Errorf("記事の取得に失敗しました: %w", err)
		}

		if existing == nil {
			next.IsRead = false
			if err := q.Items().Create(ctx, next); err != nil {
				return fmt.Errorf("記事の作成に失敗しました: %w", err)
			}
			created = true
		} else {
			// is_readはユーザーの値を保つ
			next.ID = existing.ID
			next.IsRead = existing.IsRead
			if err := q.Items().Update(ctx, next); err != nil {
				return fmt.Errorf("記事の更新に失敗しました: %w", err)
			}
		}

		return replaceItemCategories(ctx, q.Categories(), next.ID, entry.Tags)
	})
	if err != nil {
		return nil, false, err
	}
	return next, created, nil
}

// FromEntry は記事の項目を対応付ける。添付メディアは先頭の1件のみ使う。
func (r *Reconciler) FromEntry(feedID string, entry parser.Entry) *model.FeedItem {
	item := &model.FeedItem{
		FeedID:      feedID,
		Title:       entry.Title,
		Author:      entry.Author,
		Link:        entry.Link,
		GUID:        entry.ID,
		Description: r.sanitizer.Sanitize(entry.Summary),
		Comments:    entry.Comments,
		PubDate:     parser.PubDate(entry.Published),
	}
	if len(entry.Enclosures) > 0 {
		enc := entry.Enclosures[0]
		item.Enclosure = model.Enclosure{URL: enc.Href, Type: enc.Type, Length: enc.Length}
	}
	return item
}

func replaceItemCategories(ctx context.Context, repo repository.CategoryRepository, itemID string, tags []parser.Tag) error {
	if err := repo.DeleteByItemID(ctx, itemID); err != nil {
		return fmt.Errorf("記事カテゴリの削除に失敗しました: %w", err)
	}
	for _, c := range feed.Categories(itemID, tags) {
		if err := repo.CreateForItem(ctx, c); err != nil {
			return fmt.Errorf("記事カテゴリの作成に失敗しました: %w", err)
		}
	}
	return nil
}
