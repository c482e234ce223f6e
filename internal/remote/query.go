package remote

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// MaxOrderColumns is how many order columns a Query accepts.
const MaxOrderColumns = 2

// ErrTooManyOrders is returned when a Query orders by more than
// MaxOrderColumns columns.
var ErrTooManyOrders = errors.New("remote: at most two order columns")

type filter struct {
	column string
	value  string
}

type order struct {
	column string
	asc    bool
}

// Query composes equality filters, ordering and a limit for one table.
type Query struct {
	table   string
	filters []filter
	orders  []order
	limit   int
	err     error
}

// From starts a query on table.
func From(table string) *Query {
	return &Query{table: table}
}

// Table returns the queried table.
func (q *Query) Table() string { return q.table }

// Eq adds a column = value filter.
func (q *Query) Eq(column, value string) *Query {
	q.filters = append(q.filters, filter{column: column, value: value})
	return q
}

// Order adds an order column. The first call is the primary order.
func (q *Query) Order(column string, asc bool) *Query {
	if len(q.orders) == MaxOrderColumns {
		q.err = ErrTooManyOrders
		return q
	}
	q.orders = append(q.orders, order{column: column, asc: asc})
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Values encodes the query as PostgREST URL parameters.
func (q *Query) Values() (url.Values, error) {
	if q.err != nil {
		return nil, q.err
	}
	v := url.Values{}
	v.Set("select", "*")
	for _, f := range q.filters {
		v.Add(f.column, "eq."+f.value)
	}
	if len(q.orders) > 0 {
		parts := make([]string, len(q.orders))
		for i, o := range q.orders {
			dir := "desc"
			if o.asc {
				dir = "asc"
			}
			parts[i] = o.column + "." + dir
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	return v, nil
}
