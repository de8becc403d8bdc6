package parser

import "time"

// PubDate はパーサーが返す日時表現を*time.Timeに変換する。
// time.Time、*time.Time、[]int{年, 月, 日, 時, 分, 秒, ...} を受け付け、UTCで返す。
// 値がない場合や解釈できない場合はnil（日時なし）を返す。
func PubDate(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return utcOrNil(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return utcOrNil(*t)
	case []int:
		return fromTuple(t)
	}
	return nil
}

func utcOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// fromTuple は先頭6要素を年月日時分秒として解釈する。
// 7要素目以降（曜日、通日、夏時間フラグ）は無視する。
func fromTuple(v []int) *time.Time {
	if len(v) < 6 {
		return nil
	}
	year, month, day, hour, minute, second := v[0], v[1], v[2], v[3], v[4], v[5]
	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 61 {
		return nil
	}
	// うるう秒は59秒に丸める
	if second > 59 {
		second = 59
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// 2月30日のような存在しない日付は正規化で日がずれる
	if t.Day() != day {
		return nil
	}
	return &t
}
