package database

import (
	"context"
)

type Querier interface {
	GetEntry(ctx context.Context, id string) (EntryRow, error)
	ListEntries(ctx context.Context) ([]EntryRow, error)
}

var _ Querier = (*Queries)(nil)

// EntryRow is a stored entry; Payload holds the JSON record as submitted.
type EntryRow struct {
	ID      string
	Payload []byte
}

const getEntry = `SELECT id, payload FROM capsule_entries WHERE id = $1`

func (q *Queries) GetEntry(ctx context.Context, id string) (EntryRow, error) {
	row := q.db.QueryRowContext(ctx, getEntry, id)
	var i EntryRow
	err := row.Scan(&i.ID, &i.Payload)
	return i, err
}

const listEntries = `SELECT id, payload FROM capsule_entries ORDER BY id`

func (q *Queries) ListEntries(ctx context.Context) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntryRow
	for rows.Next() {
		var i EntryRow
		if err := rows.Scan(&i.ID, &i.Payload); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
