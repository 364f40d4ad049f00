package paging

import (
	"github.com/nrfta/paging-cache/store"
)

// project maps listing rows to global indices.
//
// Every page is anchored at its own offset, pageNumber*pageSize, and its rows
// take consecutive indices from there in Order order. Rows that fail to decode,
// or decode to a placeholder, keep their slot but get no map entry. rows must
// be sorted by Order.
func project[T any](rows []store.ListingRow, pageSize int, codec Codec[T]) map[int]T {
	items := make(map[int]T, len(rows))

	var (
		page int64
		rank int
	)
	for i, row := range rows {
		if i == 0 || row.PageNumber != page {
			page, rank = row.PageNumber, 0
		}

		index := int(row.PageNumber)*pageSize + rank
		rank++

		item, err := codec.Decode(row.Payload)
		if err != nil {
			continue
		}
		items[index] = item
	}

	return items
}
