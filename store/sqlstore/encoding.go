package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatDate(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decoder turns column text back into values and keeps the first error,
// so a scan function can decode every column and check once.
type decoder struct {
	err error
}

func (d *decoder) fail(column string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decode %s: %w", column, err)
	}
}

func (d *decoder) time(column, s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		d.fail(column, err)
	}
	return t
}

func (d *decoder) timePtr(column string, ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := d.time(column, ns.String)
	return &t
}

func (d *decoder) date(column, s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		d.fail(column, err)
	}
	return t
}

func (d *decoder) decimal(column, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(column, err)
	}
	return v
}

func (d *decoder) json(column, s string, v any) {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		d.fail(column, err)
	}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
