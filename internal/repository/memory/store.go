// Package memory はrepository.Storeのインメモリ実装を提供する。
// 一意制約、必須項目、トランザクションのロールバックをPostgreSQL版と同じ意味で再現する。
// テストと、DBを用意しない単発実行で使用する。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
)

type itemRow struct {
	item model.FeedItem
	seq  int64
}

// state はストアの全データ。トランザクション開始時に複製される。
type state struct {
	subs     map[string]model.Subscription
	feeds    map[string]model.Feed
	items    map[string]itemRow
	feedCats map[string]model.Category
	itemCats map[string]model.Category
	seq      int64
}

func newState() *state {
	return &state{
		subs:     map[string]model.Subscription{},
		feeds:    map[string]model.Feed{},
		items:    map[string]itemRow{},
		feedCats: map[string]model.Category{},
		itemCats: map[string]model.Category{},
	}
}

func (s *state) clone() *state {
	c := &state{
		subs:     make(map[string]model.Subscription, len(s.subs)),
		feeds:    make(map[string]model.Feed, len(s.feeds)),
		items:    make(map[string]itemRow, len(s.items)),
		feedCats: make(map[string]model.Category, len(s.feedCats)),
		itemCats: make(map[string]model.Category, len(s.itemCats)),
		seq:      s.seq,
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.feeds {
		c.feeds[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.feedCats {
		c.feedCats[k] = v
	}
	for k, v := range s.itemCats {
		c.itemCats[k] = v
	}
	return c
}

// Store はrepository.Storeのインメモリ実装。
// トランザクションは直列化され、fnの実行中は他の操作を待たせる。
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	root *queries
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	s := &Store{st: newState(), now: time.Now}
	s.root = &queries{store: s}
	return s
}

func (s *Store) Subscriptions() repository.SubscriptionRepository { return s.root.Subscriptions() }
func (s *Store) Feeds() repository.FeedRepository                 { return s.root.Feeds() }
func (s *Store) Items() repository.ItemRepository                 { return s.root.Items() }
func (s *Store) Categories() repository.CategoryRepository        { return s.root.Categories() }

// WithTx はデータの複製に対してfnを実行し、成功した場合のみ反映する。
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &queries{store: s, tx: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.tx
	return nil
}

// PingContext は常に成功する。ヘルスチェック用。
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// queries はトランザクション内外で共通のリポジトリ実装。
// txがnilの場合は呼び出しごとにロックを取る。
type queries struct {
	store *Store
	tx    *state
}

func (q *queries) acquire() (*state, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return q.store.st, q.store.mu.Unlock
}

func (q *queries) Subscriptions() repository.SubscriptionRepository { return subscriptionRepo{q} }
func (q *queries) Feeds() repository.FeedRepository                 { return feedRepo{q} }
func (q *queries) Items() repository.ItemRepository                 { return itemRepo{q} }
func (q *queries) Categories() repository.CategoryRepository        { return categoryRepo{q} }

// --- subscriptions ---

type subscriptionRepo struct{ q *queries }

func (r subscriptionRepo) FindByID(_ context.Context, id string) (*model.Subscription, error) {
	st, release := r.q.acquire()
	defer release()

	sub, ok := st.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r subscriptionRepo) Create(_ context.Context, sub *model.Subscription) error {
	st, release := r.q.acquire()
	defer release()

	if sub.URL == "" {
		return &model.ValidationError{Entity: "subscription", Field: "url", Reason: "must not be null"}
	}
	for _, existing := range st.subs {
		if existing.OwnerID == sub.OwnerID && existing.URL == sub.URL {
			return &model.ValidationError{Entity: "subscription", Field: "owner_id,url", Reason: "already exists"}
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = model.StatusNew
	}
	now := r.q.store.now()
	sub.CreatedAt, sub.UpdatedAt = now, now
	st.subs[sub.ID] = *sub
	return nil
}

// update は購読を取り出してfnで書き換える。存在しない場合はNotFoundErrorを返す。
func (r subscriptionRepo) update(id string, fn func(sub *model.Subscription)) (model.Subscription, error) {
	st, release := r.q.acquire()
	defer release()

	sub, ok := st.subs[id]
	if !ok {
		return sub, &model.NotFoundError{Resource: "subscription", ID: id}
	}
	fn(&sub)
	sub.UpdatedAt = r.q.store.now()
	st.subs[id] = sub
	return sub, nil
}

func (r subscriptionRepo) UpdateStatus(_ context.Context, id string, status model.SubscriptionStatus) error {
	if !status.Valid() {
		return &model.ValidationError{Entity: "subscription", Field: "status", Reason: "check constraint violated"}
	}
	_, err := r.update(id, func(sub *model.Subscription) { sub.Status = status })
	return err
}

func (r subscriptionRepo) MarkSucceeded(_ context.Context, id string) error {
	_, err := r.update(id, func(sub *model.Subscription) {
		sub.Status = model.StatusReady
		sub.Retries = 0
		sub.IsStopped = false
	})
	return err
}

func (r subscriptionRepo) IncrementRetries(_ context.Context, id string) (int, error) {
	sub, err := r.update(id, func(sub *model.Subscription) {
		sub.Status = model.StatusReady
		sub.Retries++
	})
	return sub.Retries, err
}

func (r subscriptionRepo) MarkStopped(_ context.Context, id string) error {
	_, err := r.update(id, func(sub *model.Subscription) { sub.IsStopped = true })
	return err
}

func (r subscriptionRepo) ResetIfStopped(_ context.Context, id string) (bool, error) {
	st, release := r.q.acquire()
	defer release()

	sub, ok := st.subs[id]
	if !ok || !sub.IsStopped {
		return false, nil
	}
	sub.Status = model.StatusReady
	sub.Retries = 0
	sub.IsStopped = false
	sub.UpdatedAt = r.q.store.now()
	st.subs[id] = sub
	return true, nil
}

func (r subscriptionRepo) ListRunnableIDs(_ context.Context) ([]string, error) {
	st, release := r.q.acquire()
	defer release()

	var subs []model.Subscription
	for _, sub := range st.subs {
		if !sub.IsStopped && sub.Status == model.StatusReady {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].UpdatedAt.Equal(subs[j].UpdatedAt) {
			return subs[i].UpdatedAt.Before(subs[j].UpdatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

// --- feeds ---

type feedRepo struct{ q *queries }

func (r feedRepo) FindBySubscriptionID(_ context.Context, subscriptionID string) (*model.Feed, error) {
	st, release := r.q.acquire()
	defer release()

	for _, f := range st.feeds {
		if f.SubscriptionID == subscriptionID {
			return &f, nil
		}
	}
	return nil, nil
}

func (r feedRepo) Create(_ context.Context, feed *model.Feed) error {
	st, release := r.q.acquire()
	defer release()

	if feed.Title == "" {
		return &model.ValidationError{Entity: "feed", Field: "title", Reason: "must not be null"}
	}
	if _, ok := st.subs[feed.SubscriptionID]; !ok {
		return &model.ValidationError{Entity: "feed", Field: "subscription_id", Reason: "references a missing subscription"}
	}
	for _, f := range st.feeds {
		if f.SubscriptionID == feed.SubscriptionID {
			return &model.ValidationError{Entity: "feed", Field: "subscription_id", Reason: "already exists"}
		}
	}
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	now := r.q.store.now()
	feed.CreatedAt, feed.UpdatedAt = now, now
	st.feeds[feed.ID] = *feed
	return nil
}

func (r feedRepo) Update(_ context.Context, feed *model.Feed) error {
	st, release := r.q.acquire()
	defer release()

	existing, ok := st.feeds[feed.ID]
	if !ok {
		return &model.NotFoundError{Resource: "feed", ID: feed.ID}
	}
	if feed.Title == "" {
		return &model.ValidationError{Entity: "feed", Field: "title", Reason: "must not be null"}
	}
	feed.SubscriptionID = existing.SubscriptionID
	feed.CreatedAt = existing.CreatedAt
	feed.UpdatedAt = r.q.store.now()
	st.feeds[feed.ID] = *feed
	return nil
}

// --- items ---

type itemRepo struct{ q *queries }

func (r itemRepo) FindByFeedAndTitle(_ context.Context, feedID, title string) (*model.FeedItem, error) {
	st, release := r.q.acquire()
	defer release()

	for _, row := range st.items {
		if row.item.FeedID == feedID && row.item.Title == title {
			item := row.item
			return &item, nil
		}
	}
	return nil, nil
}

func (r itemRepo) ListByFeedID(_ context.Context, feedID string) ([]*model.FeedItem, error) {
	st, release := r.q.acquire()
	defer release()

	var rows []itemRow
	for _, row := range st.items {
		if row.item.FeedID == feedID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	items := make([]*model.FeedItem, 0, len(rows))
	for _, row := range rows {
		item := row.item
		items = append(items, &item)
	}
	return items, nil
}

func (r itemRepo) Create(_ context.Context, item *model.FeedItem) error {
	st, release := r.q.acquire()
	defer release()

	if item.Title == "" {
		return &model.ValidationError{Entity: "feed_item", Field: "title", Reason: "must not be null"}
	}
	if _, ok := st.feeds[item.FeedID]; !ok {
		return &model.ValidationError{Entity: "feed_item", Field: "feed_id", Reason: "references a missing feed"}
	}
	for _, row := range st.items {
		if row.item.FeedID == item.FeedID && row.item.Title == item.Title {
			return &model.ValidationError{Entity: "feed_item", Field: "feed_id,title", Reason: "already exists"}
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := r.q.store.now()
	item.CreatedAt, item.UpdatedAt = now, now
	st.seq++
	st.items[item.ID] = itemRow{item: *item, seq: st.seq}
	return nil
}

func (r itemRepo) Update(_ context.Context, item *model.FeedItem) error {
	st, release := r.q.acquire()
	defer release()

	row, ok := st.items[item.ID]
	if !ok {
		return &model.NotFoundError{Resource: "feed_item", ID: item.ID}
	}
	if item.Title == "" {
		return &model.ValidationError{Entity: "feed_item", Field: "title", Reason: "must not be null"}
	}
	for id, other := range st.items {
		if id != item.ID && other.item.FeedID == row.item.FeedID && other.item.Title == item.Title {
			return &model.ValidationError{Entity: "feed_item", Field: "feed_id,title", Reason: "already exists"}
		}
	}
	item.FeedID = row.item.FeedID
	item.IsRead = row.item.IsRead
	item.CreatedAt = row.item.CreatedAt
	item.UpdatedAt = r.q.store.now()
	row.item = *item
	st.items[item.ID] = row
	return nil
}

// --- categories ---

type categoryRepo struct{ q *queries }

func listCategories(m map[string]model.Category, ownerID string) []*model.Category {
	var cats []*model.Category
	for _, c := range m {
		if c.OwnerID == ownerID {
			c := c
			cats = append(cats, &c)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Keyword < cats[j].Keyword })
	return cats
}

func deleteCategories(m map[string]model.Category, ownerID string) {
	for id, c := range m {
		if c.OwnerID == ownerID {
			delete(m, id)
		}
	}
}

func createCategory(m map[string]model.Category, entity string, c *model.Category) error {
	if c.Keyword == "" {
		return &model.ValidationError{Entity: entity, Field: "keyword", Reason: "must not be null"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m[c.ID] = *c
	return nil
}

func (r categoryRepo) ListByFeedID(_ context.Context, feedID string) ([]*model.Category, error) {
	st, release := r.q.acquire()
	defer release()
	return listCategories(st.feedCats, feedID), nil
}

func (r categoryRepo) DeleteByFeedID(_ context.Context, feedID string) error {
	st, release := r.q.acquire()
	defer release()
	deleteCategories(st.feedCats, feedID)
	return nil
}

func (r categoryRepo) CreateForFeed(_ context.Context, c *model.Category) error {
	st, release := r.q.acquire()
	defer release()
	if _, ok := st.feeds[c.OwnerID]; !ok {
		return &model.ValidationError{Entity: "feed_categories", Field: "feed_id", Reason: "references a missing feed"}
	}
	return createCategory(st.feedCats, "feed_categories", c)
}

func (r categoryRepo) ListByItemID(_ context.Context, itemID string) ([]*model.Category, error) {
	st, release := r.q.acquire()
	defer release()
	return listCategories(st.itemCats, itemID), nil
}

func (r categoryRepo) DeleteByItemID(_ context.Context, itemID string) error {
	st, release := r.q.acquire()
	defer release()
	deleteCategories(st.itemCats, itemID)
	return nil
}

func (r categoryRepo) CreateForItem(_ context.Context, c *model.Category) error {
	st, release := r.q.acquire()
	defer release()
	if _, ok := st.items[c.OwnerID]; !ok {
		return &model.ValidationError{Entity: "feed_item_categories", Field: "item_id", Reason: "references a missing feed item"}
	}
	return createCategory(st.itemCats, "feed_item_categories", c)
}

// compile-time interface check
var _ repository.Store = (*Store)(nil)
