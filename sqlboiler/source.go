package sqlboiler

import (
	"context"
	"strings"

	"github.com/aarondl/sqlboiler/v4/queries/qm"
	"github.com/friendsofgo/errors"

	"github.com/nrfta/paging-cache"
)

// QueryFunc executes a SQLBoiler query and returns results.
//
// Type parameter T is the SQLBoiler model type (e.g., *models.Article).
type QueryFunc[T any] func(ctx context.Context, mods ...qm.QueryMod) ([]T, error)

// CountFunc executes a SQLBoiler count query.
type CountFunc func(ctx context.Context, mods ...qm.QueryMod) (int64, error)

// OrderBy is one ORDER BY directive.
type OrderBy struct {
	Column string
	Desc   bool
}

// Source is a paging.PageSource over a SQL table read through SQLBoiler
// models with OFFSET/LIMIT paging. It suits listings whose origin is a
// database the client can reach directly.
//
// Example:
//
//	source := sqlboiler.NewSource(
//	    func(ctx context.Context, mods ...qm.QueryMod) ([]*models.Article, error) {
//	        return models.Articles(mods...).All(ctx, db)
//	    },
//	    func(ctx context.Context, mods ...qm.QueryMod) (int64, error) {
//	        return models.Articles(mods...).Count(ctx, db)
//	    },
//	    25,
//	    []sqlboiler.OrderBy{{Column: "published_at", Desc: true}, {Column: "id", Desc: true}},
//	)
type Source[T any] struct {
	query    QueryFunc[T]
	count    CountFunc
	pageSize int
	orderBy  []OrderBy
	filters  []qm.QueryMod
}

var _ paging.PageSource[any] = (*Source[any])(nil)

// NewSource creates a source returning pageSize records per page. filters
// are applied to both the page and the count query.
func NewSource[T any](query QueryFunc[T], count CountFunc, pageSize int, orderBy []OrderBy, filters ...qm.QueryMod) *Source[T] {
	return &Source[T]{
		query:    query,
		count:    count,
		pageSize: pageSize,
		orderBy:  orderBy,
		filters:  filters,
	}
}

// FetchPage implements paging.PageSource.
func (s *Source[T]) FetchPage(ctx context.Context, page int) (paging.Payload[T], error) {
	total, err := s.count(ctx, s.filters...)
	if err != nil {
		return paging.Payload[T]{}, errors.Wrap(err, "count source rows")
	}

	mods := make([]qm.QueryMod, 0, len(s.filters)+3)
	mods = append(mods, s.filters...)
	mods = append(mods, PageMods(page, s.pageSize, s.orderBy)...)

	records, err := s.query(ctx, mods...)
	if err != nil {
		return paging.Payload[T]{}, errors.Wrapf(err, "query source page %d", page)
	}

	return paging.Payload[T]{
		TotalCount: int(total),
		IsMore:     int64((page+1)*s.pageSize) < total,
		Records:    records,
	}, nil
}

// PageMods converts a page number into SQLBoiler query mods.
//
// The conversion follows these rules:
//   - page*pageSize → qm.Offset(n), omitted for the first page
//   - pageSize → qm.Limit(n)
//   - orderBy → qm.OrderBy("col1 DESC, col2")
func PageMods(page, pageSize int, orderBy []OrderBy) []qm.QueryMod {
	mods := []qm.QueryMod{}

	if offset := page * pageSize; offset > 0 {
		mods = append(mods, qm.Offset(offset))
	}

	if pageSize > 0 {
		mods = append(mods, qm.Limit(pageSize))
	}

	if len(orderBy) > 0 {
		mods = append(mods, qm.OrderBy(buildOrderByClause(orderBy)))
	}

	return mods
}

// buildOrderByClause renders the ORDER BY clause PageMods attaches to the
// source query. Plain and table-qualified columns are quoted; expressions are
// left as written. End on a unique column or OFFSET pages can overlap.
//
//	[]OrderBy{{Column: "published_at", Desc: true}, {Column: "id", Desc: true}}
//	→ "published_at" DESC, "id" DESC
func buildOrderByClause(orderBy []OrderBy) string {
	var b strings.Builder
	for i, o := range orderBy {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(o.Column))
		if o.Desc {
			b.WriteString(" DESC")
		}
	}
	return b.String()
}
