package import_pkg

import (
	"fmt"
	"strings"

	"github.com/oar-pipeline/internal/model"
)

// Columns of a raw registry export, in the order they are written.
var Columns = []string{
	"id", "name", "address", "country", "lat", "lon", "is_closed",
	"created_at", "updated_at", "contributor", "sector",
	"processing_activity", "company_name", "company_id",
}

// requiredColumns must be present in the header; the rest are optional.
var requiredColumns = []string{"id", "name", "company_id"}

// columnMap maps a header name to its index in a row.
type columnMap map[string]int

func newColumnMap(header []string) (columnMap, error) {
	cols := make(columnMap, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// get returns the named column of row, or "" when absent.
func (c columnMap) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// mapRecord converts one CSV row into a raw record
func (c columnMap) mapRecord(row []string) model.RawRecord {
	return model.RawRecord{
		ID:                 parseString(c.get(row, "id")),
		Name:               parseString(c.get(row, "name")),
		Address:            parseString(c.get(row, "address")),
		Country:            parseString(c.get(row, "country")),
		Lat:                parseFloat(c.get(row, "lat")),
		Lon:                parseFloat(c.get(row, "lon")),
		IsClosed:           parseBool(c.get(row, "is_closed")),
		CreatedAt:          parseDate(c.get(row, "created_at")),
		UpdatedAt:          parseDate(c.get(row, "updated_at")),
		Contributor:        parseString(c.get(row, "contributor")),
		Sector:             parseString(c.get(row, "sector")),
		ProcessingActivity: parseString(c.get(row, "processing_activity")),
		CompanyName:        parseString(c.get(row, "company_name")),
		CompanyID:          parseString(c.get(row, "company_id")),
	}
}
