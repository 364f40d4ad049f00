package sqlboiler

import (
	"fmt"
	"strings"

	"github.com/aarondl/sqlboiler/v4/drivers"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/aarondl/sqlboiler/v4/queries/qm"
	"github.com/aarondl/strmangle"
)

// Table names of the cache schema.
const (
	ItemsTable    = "paging_items"
	EntriesTable  = "paging_listing_entries"
	MetadataTable = "paging_page_metadata"
)

// maxRowsPerInsert keeps multi-row inserts well below PostgreSQL's limit of
// 65535 bind parameters.
const maxRowsPerInsert = 1000

var (
	itemColumns     = []string{"id", "payload", "updated_at"}
	entryColumns    = []string{"query_key", "item_id", "item_order", "page_number"}
	metadataColumns = []string{"query_key", "page_number", "next_page_key", "total_count"}
)

// dialect is the PostgreSQL dialect SQLBoiler generates for psql models.
var dialect = drivers.Dialect{
	LQ: '"',
	RQ: '"',

	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

// newQuery builds a SQLBoiler query for the PostgreSQL dialect.
func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

func column(table, name string) string {
	return table + "." + name
}

// ListingMods returns the query mods that read a query's listing joined with
// item payloads, in listing order.
//
// Example:
//
//	mods := sqlboiler.ListingMods("feed:home")
//	// SELECT "paging_listing_entries"."item_id", ... FROM paging_listing_entries
//	// INNER JOIN paging_items ON ... WHERE paging_listing_entries.query_key = $1
//	// ORDER BY paging_listing_entries.item_order, paging_listing_entries.item_id
func ListingMods(queryKey string) []qm.QueryMod {
	return []qm.QueryMod{
		qm.Select(
			column(EntriesTable, "item_id"),
			column(EntriesTable, "item_order"),
			column(EntriesTable, "page_number"),
			column(ItemsTable, "payload"),
		),
		qm.From(EntriesTable),
		qm.InnerJoin(fmt.Sprintf("%s ON %s = %s",
			ItemsTable, column(ItemsTable, "id"), column(EntriesTable, "item_id"))),
		qm.Where(column(EntriesTable, "query_key")+" = ?", queryKey),
		qm.OrderBy(column(EntriesTable, "item_order") + ", " + column(EntriesTable, "item_id")),
	}
}

// LatestPageMods returns the query mods that read the metadata row with the
// greatest page number of a query.
func LatestPageMods(queryKey string) []qm.QueryMod {
	return []qm.QueryMod{
		qm.Select(metadataColumns...),
		qm.From(MetadataTable),
		qm.Where("query_key = ?", queryKey),
		qm.OrderBy("page_number DESC"),
		qm.Limit(1),
	}
}

// ItemMods returns the query mods that read one cached item.
func ItemMods(id int64) []qm.QueryMod {
	return []qm.QueryMod{
		qm.Select(itemColumns...),
		qm.From(ItemsTable),
		qm.Where("id = ?", id),
	}
}

// pageNumbersSQL lists the pages of a query that have entries or metadata.
var pageNumbersSQL = fmt.Sprintf(
	`SELECT page_number FROM %s WHERE query_key = $1 UNION SELECT page_number FROM %s WHERE query_key = $1 ORDER BY page_number`,
	quoteIdent(EntriesTable), quoteIdent(MetadataTable),
)

func quoteIdent(name string) string {
	return strmangle.IdentQuote(dialect.LQ, dialect.RQ, name)
}

// insertSQL builds a multi-row INSERT for rows rows of columns.
//
// With no conflict columns it is a plain insert. With conflict columns and no
// update columns conflicting rows are skipped. Otherwise conflicting rows take
// the new values of the update columns.
//
// Example:
//
//	insertSQL("paging_items", []string{"id", "payload"}, 1, []string{"id"}, []string{"payload"})
//	// INSERT INTO "paging_items" ("id","payload") VALUES ($1,$2)
//	// ON CONFLICT ("id") DO UPDATE SET "payload" = EXCLUDED."payload"
func insertSQL(table string, columns []string, rows int, conflict, update []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		quoteIdent(table),
		strings.Join(strmangle.IdentQuoteSlice(dialect.LQ, dialect.RQ, columns), ","),
	)

	placeholders := strmangle.Placeholders(dialect.UseIndexPlaceholders, len(columns)*rows, 1, len(columns))
	if len(columns) == 1 {
		// Placeholders only groups rows when a group has several columns.
		placeholders = "(" + strings.ReplaceAll(placeholders, ",", "),(") + ")"
	}
	b.WriteString(placeholders)

	if len(conflict) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) ",
		strings.Join(strmangle.IdentQuoteSlice(dialect.LQ, dialect.RQ, conflict), ","))

	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}

	sets := make([]string, len(update))
	for i, col := range update {
		quoted := quoteIdent(col)
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted)
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// deleteSQL builds a DELETE whose WHERE clause matches every given column.
func deleteSQL(table string, where []string) string {
	conds := make([]string, len(where))
	for i, col := range where {
		conds[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), i+1)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), strings.Join(conds, " AND "))
}

var (
	upsertItemSQL     = insertSQL(ItemsTable, itemColumns, 1, []string{"id"}, []string{"payload", "updated_at"})
	upsertMetadataSQL = insertSQL(MetadataTable, metadataColumns, 1,
		[]string{"query_key", "page_number"}, []string{"next_page_key", "total_count"})
	deleteEntriesSQL  = deleteSQL(EntriesTable, []string{"query_key", "page_number"})
	deleteMetadataSQL = deleteSQL(MetadataTable, []string{"query_key", "page_number"})
)

// insertEntriesSQL inserts rows listing entries, skipping existing ones.
func insertEntriesSQL(rows int) string {
	return insertSQL(EntriesTable, entryColumns, rows, []string{"query_key", "item_id", "page_number"}, nil)
}
