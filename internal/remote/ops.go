package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"mmuni/internal/models"
)

type validator interface {
	Validate() error
}

func validateRow[T any](table string, row *T) error {
	if v, ok := any(row).(validator); ok {
		if err := v.Validate(); err != nil {
			return models.NewDecodeError(table, err)
		}
	}
	return nil
}

// Select reads every row matching q.
func Select[T any](ctx context.Context, c *Client, q *Query) ([]T, error) {
	values, err := q.Values()
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	raw, err := c.do(ctx, request{method: http.MethodGet, table: q.table, query: values})
	if err != nil {
		return nil, err
	}

	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, models.NewDecodeError(q.table, err)
	}
	for i := range rows {
		if err := validateRow(q.table, &rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Single reads exactly one row. No match yields a NOT_FOUND error.
func Single[T any](ctx context.Context, c *Client, q *Query) (*T, error) {
	values, err := q.Values()
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	raw, err := c.do(ctx, request{
		method:  http.MethodGet,
		table:   q.table,
		query:   values,
		headers: map[string]string{"Accept": "application/vnd.pgrst.object+json"},
	})
	if err != nil {
		return nil, err
	}

	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, models.NewDecodeError(q.table, err)
	}
	if err := validateRow(q.table, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// Insert adds row to table.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		table:   table,
		body:    row,
		headers: map[string]string{"Prefer": "return=minimal"},
	})
	return err
}

// Upsert inserts row or merges it into the row that conflicts on
// onConflict.
func (c *Client) Upsert(ctx context.Context, table string, row any, onConflict string) error {
	q := url.Values{}
	if onConflict != "" {
		q.Set("on_conflict", onConflict)
	}
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		table:   table,
		query:   q,
		body:    row,
		headers: map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"},
	})
	return err
}

// Update patches the row whose keyColumn equals key.
func (c *Client) Update(ctx context.Context, table, keyColumn, key string, patch any) error {
	if key == "" {
		return models.NewValidationError(fmt.Sprintf("%s key is required", table))
	}
	q := url.Values{}
	q.Set(keyColumn, "eq."+key)
	_, err := c.do(ctx, request{
		method:  http.MethodPatch,
		table:   table,
		query:   q,
		body:    patch,
		headers: map[string]string{"Prefer": "return=minimal"},
	})
	return err
}

// Delete removes the row whose keyColumn equals key.
func (c *Client) Delete(ctx context.Context, table, keyColumn, key string) error {
	if key == "" {
		return models.NewValidationError(fmt.Sprintf("%s key is required", table))
	}
	q := url.Values{}
	q.Set(keyColumn, "eq."+key)
	_, err := c.do(ctx, request{method: http.MethodDelete, table: table, query: q})
	return err
}
