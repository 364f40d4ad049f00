// Package models holds a hand-written SQLBoiler-style model for the article
// table the integration suite pages through.
package models

import (
	"context"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/drivers"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/aarondl/sqlboiler/v4/queries/qm"
	"github.com/friendsofgo/errors"
)

// Article is an object representing the database table.
type Article struct {
	ID          int64     `boil:"id" json:"id"`
	Slug        string    `boil:"slug" json:"slug"`
	Title       string    `boil:"title" json:"title"`
	PublishedAt time.Time `boil:"published_at" json:"published_at"`
}

const articleTable = "articles"

var dialect = drivers.Dialect{
	LQ: '"',
	RQ: '"',

	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

type articleQuery struct {
	*queries.Query
}

// Articles returns a new query against the articles table.
func Articles(mods ...qm.QueryMod) articleQuery {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, append([]qm.QueryMod{qm.From(articleTable)}, mods...)...)
	return articleQuery{Query: q}
}

// All returns all Article records from the query.
func (q articleQuery) All(ctx context.Context, exec boil.ContextExecutor) ([]*Article, error) {
	var o []*Article
	if err := q.Bind(ctx, exec, &o); err != nil {
		return nil, errors.Wrap(err, "models: failed to assign all query results to Article slice")
	}
	return o, nil
}

// Count returns the count of all Article records in the query.
func (q articleQuery) Count(ctx context.Context, exec boil.ContextExecutor) (int64, error) {
	var count int64

	queries.SetSelect(q.Query, nil)
	queries.SetCount(q.Query)

	if err := q.Query.QueryRowContext(ctx, exec).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "models: failed to count articles rows")
	}
	return count, nil
}
