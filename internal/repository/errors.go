package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation  = "23505"
	pqNotNullViolation = "23502"
	pqCheckViolation   = "23514"
	pqFKViolation      = "23503"
	pqStringTooLong    = "22001"
	pqBadByteSequence  = "22021"
	pqRowTooLarge      = "54000"
	pqInvalidText      = "22P02"
)

// translateError はドライバのエラーをドメインエラーに変換する。
// 制約違反と値そのものが拒否された場合はmodel.ValidationErrorとして返し、
// それ以外はmsgを付けてラップする。
func translateError(entity, msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return &model.ValidationError{Entity: entity, Field: pqErr.Constraint, Reason: "already exists", Err: err}
		case pqNotNullViolation:
			return &model.ValidationError{Entity: entity, Field: pqErr.Column, Reason: "must not be null", Err: err}
		case pqCheckViolation:
			return &model.ValidationError{Entity: entity, Field: pqErr.Constraint, Reason: "check constraint violated", Err: err}
		case pqFKViolation:
			return &model.ValidationError{Entity: entity, Field: pqErr.Constraint, Reason: "referenced row does not exist", Err: err}
		case pqStringTooLong:
			return &model.ValidationError{Entity: entity, Field: pqErr.Column, Reason: "value too long", Err: err}
		case pqBadByteSequence:
			// NULバイトや不正なUTF-8
			return &model.ValidationError{Entity: entity, Field: pqErr.Column, Reason: "invalid byte sequence", Err: err}
		case pqRowTooLarge:
			// 一意インデックスに収まらない長さのタイトルなど
			return &model.ValidationError{Entity: entity, Field: pqErr.Constraint, Reason: "value too large for index", Err: err}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isInvalidUUID はUUID列に不正な文字列を渡した場合のエラーかを返す。
// 該当するIDは存在しないものとして扱う。
func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidText
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringを文字列に変換する。NULLの場合は空文字列を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
