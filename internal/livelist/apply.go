package livelist

import (
	"encoding/json"
	"errors"
	"fmt"

	"campus/api/internal/realtime"
)

var ErrEmptyRow = errors.New("livelist: event carries no row")

type validator interface {
	Validate() error
}

// Row decodes the row an event carries: the new row for inserts and updates, the removed
// row for deletes. Rows whose type has a Validate method must pass it.
func Row[T any](event realtime.ChangeEvent) (T, error) {
	var row T
	raw := event.Record
	if event.Op == realtime.OpDelete || len(raw) == 0 {
		raw = event.Old
	}
	if len(raw) == 0 {
		return row, ErrEmptyRow
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, fmt.Errorf("decode %s row: %w", event.Table, err)
	}
	if v, ok := any(row).(validator); ok {
		if err := v.Validate(); err != nil {
			return row, err
		}
	}
	return row, nil
}

// Keyed applies inserts, updates and deletes by key. Inserts of an unseen key are appended,
// or prepended when newestFirst is set; updates of an unseen key are treated as inserts.
// keep, when non-nil, filters out rows that do not belong to the list.
func Keyed[T any](key func(T) string, newestFirst bool, keep func(T) bool) ApplyFunc[T] {
	return func(data []T, event realtime.ChangeEvent) ([]T, bool, error) {
		row, err := Row[T](event)
		if err != nil {
			return data, false, err
		}
		if keep != nil && !keep(row) {
			return data, false, nil
		}
		idx := indexOf(data, key(row), key)

		switch event.Op {
		case realtime.OpDelete:
			if idx < 0 {
				return data, false, nil
			}
			out := make([]T, 0, len(data)-1)
			out = append(out, data[:idx]...)
			return append(out, data[idx+1:]...), true, nil
		case realtime.OpInsert, realtime.OpUpdate:
			if idx >= 0 {
				out := append([]T(nil), data...)
				out[idx] = row
				return out, true, nil
			}
			if newestFirst {
				return append([]T{row}, data...), true, nil
			}
			out := append([]T(nil), data...)
			return append(out, row), true, nil
		}
		return data, false, nil
	}
}

func indexOf[T any](data []T, k string, key func(T) string) int {
	for i, item := range data {
		if key(item) == k {
			return i
		}
	}
	return -1
}
