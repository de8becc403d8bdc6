// Package feed は取得したチャンネル情報を購読のフィードへ反映する。
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/parser"
	"github.com/hitoshi/feedsync/internal/repository"
)

// Reconciler は購読のフィードを作成または全項目上書きし、カテゴリを置き換える。
// フィードの書き込みとカテゴリの置き換えは1つのトランザクションで行う。
type Reconciler struct {
	store  repository.Store
	logger *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(store repository.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Reconcile はparsedのチャンネル情報を購読のフィードに反映して返す。
// 失敗した場合は何も反映されない。
func (r *Reconciler) Reconcile(ctx context.Context, sub *model.Subscription, parsed *parser.ParsedFeed) (*model.Feed, error) {
	next := FromChannel(parsed.Channel)
	if next.Title == "" {
		return nil, &model.ValidationError{Entity: "feed", Field: "title", Reason: "must not be empty"}
	}

	var created bool
	err := r.store.WithTx(ctx, func(q repository.Queries) error {
		existing, err := q.Feeds().FindBySubscriptionID(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("フィードの取得に失敗しました: %w", err)
		}

		next.SubscriptionID = sub.ID
		if existing == nil {
			if err := q.Feeds().Create(ctx, next); err != nil {
				return fmt.Errorf("フィードの作成に失敗しました: %w", err)
			}
			created = true
		} else {
			// 前回の値は引き継がない。今回の取得にない項目は空になる
			next.ID = existing.ID
			if err := q.Feeds().Update(ctx, next); err != nil {
				return fmt.Errorf("フィードの更新に失敗しました: %w", err)
			}
		}

		return ReplaceFeedCategories(ctx, q.Categories(), next.ID, parsed.Tags)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("フィードを反映しました",
		slog.String("subscription_id", sub.ID),
		slog.String("feed_id", next.ID),
		slog.Bool("created", created),
		slog.Int("categories", len(parsed.Tags)),
	)
	return next, nil
}

// FromChannel はチャンネル情報をフィードの項目に対応付ける。
// 存在しない要素は空文字列またはnilになる。
func FromChannel(ch parser.Channel) *model.Feed {
	f := &model.Feed{
		Title:          ch.Title,
		Description:    ch.Subtitle,
		Link:           ch.Link,
		Language:       ch.Language,
		Copyright:      ch.Rights,
		Docs:           ch.Docs,
		Encoding:       ch.Encoding,
		Generator:      ch.Generator,
		ManagingEditor: ch.Author,
		WebMaster:      ch.Publisher,
		TTL:            ch.TTL,
		Version:        ch.Version,
		PubDate:        parser.PubDate(ch.Published),
	}
	if ch.Image != nil {
		f.Image = model.FeedImage{
			URL:         ch.Image.Href,
			Title:       ch.Image.Title,
			Link:        ch.Image.Link,
			Width:       ch.Image.Width,
			Height:      ch.Image.Height,
			Description: ch.Image.Description,
		}
	}
	if ch.Cloud != nil {
		f.Cloud = model.FeedCloud(*ch.Cloud)
	}
	if ch.TextInput != nil {
		f.TextInput = model.FeedTextInput(*ch.TextInput)
	}
	return f
}

// Categories はタグをカテゴリに変換する。scheme→domain、term→keyword、label→labelの対応。
// keywordは必須のため、termが空のタグは除外する。
func Categories(ownerID string, tags []parser.Tag) []*model.Category {
	return lo.FilterMap(tags, func(t parser.Tag, _ int) (*model.Category, bool) {
		if t.Term == "" {
			return nil, false
		}
		return &model.Category{
			OwnerID: ownerID,
			Domain:  t.Scheme,
			Keyword: t.Term,
			Label:   t.Label,
		}, true
	})
}

// ReplaceFeedCategories はフィードのカテゴリを全件削除してから作り直す。
func ReplaceFeedCategories(ctx context.Context, repo repository.CategoryRepository, feedID string, tags []parser.Tag) error {
	if err := repo.DeleteByFeedID(ctx, feedID); err != nil {
		return fmt.Errorf("フィードカテゴリの削除に失敗しました: %w", err)
	}
	for _, c := range Categories(feedID, tags) {
		if err := repo.CreateForFeed(ctx, c); err != nil {
			return fmt.Errorf("フィードカテゴリの作成に失敗しました: %w", err)
		}
	}
	return nil
}
