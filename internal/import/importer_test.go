package import_pkg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oar-pipeline/internal/model"
)

const sampleCSV = `id,name,address,country,lat,lon,is_closed,created_at,updated_at,contributor,sector,processing_activity,company_name,company_id
MA2021001,Textile Plant 1,"Zone Industrielle, Casablanca",Morocco,33.5731,-7.5898,False,2021-03-04T10:00:00Z,2023-01-02 08:30:00,Brand A,Apparel,Cutting,Green Textiles SA,C1
MA2021002,Dye House,,MAR,,,true,2021-03-04,,,,,Green Textiles,C2
ES2021003,Broken Coordinates,,Spain,123.0,-7.5,0,,,,,,Tejidos Norte,C3
`

func TestRead(t *testing.T) {
	records, stats, err := NewCSVImporter(nil).Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "MA2021001", model.Deref(first.ID))
	assert.Equal(t, "Zone Industrielle, Casablanca", model.Deref(first.Address))
	require.NotNil(t, first.Lat)
	assert.InDelta(t, 33.5731, *first.Lat, 1e-9)
	assert.False(t, first.IsClosed)
	require.NotNil(t, first.CreatedAt)
	assert.Equal(t, time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC), *first.CreatedAt)
	require.NotNil(t, first.UpdatedAt)
	assert.Equal(t, "C1", model.Deref(first.CompanyID))

	second := records[1]
	assert.Nil(t, second.Address, "empty strings become nil")
	assert.Nil(t, second.Lat)
	assert.Nil(t, second.Lon)
	assert.True(t, second.IsClosed)
	assert.Nil(t, second.UpdatedAt)

	third := records[2]
	assert.Nil(t, third.Lat, "out-of-range latitude is cleared")
	assert.Nil(t, third.Lon)

	assert.Equal(t, ImportStats{Rows: 3, Records: 3, InvalidCoordinates: 1}, stats)
}

func TestReadHeaderOrderIndependent(t *testing.T) {
	in := "company_id,name,id,lat,lon\nC1,Mill,F1,41.1,-8.6\n"

	records, _, err := NewCSVImporter(nil).Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Mill", model.Deref(records[0].Name))
	assert.Equal(t, "C1", model.Deref(records[0].CompanyID))
	assert.Nil(t, records[0].Country)
}

func TestReadSkipsMalformedRows(t *testing.T) {
	in := "id,name,company_id\nF1,Mill,C1\nF2,\"unterminated,C2\n"

	records, stats, err := NewCSVImporter(nil).Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, stats.MalformedRows)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, err error)
	}{
		{
			name:  "empty input",
			input: "",
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoRecords) },
		},
		{
			name:  "header only",
			input: strings.Join(Columns, ",") + "\n",
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoRecords) },
		},
		{
			name:  "missing required column",
			input: "id,name\nF1,Mill\n",
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "company_id")
				assert.False(t, errors.Is(err, ErrNoRecords))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewCSVImporter(nil).Read(strings.NewReader(tt.input))
			tt.check(t, err)
		})
	}
}

func TestReadRecordsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+sampleCSV), 0o644))

	records, _, err := NewCSVImporter(nil).ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, _, err = NewCSVImporter(nil).ReadRecords(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	assert.Nil(t, parseFloat("abc"))
	assert.Nil(t, parseFloat("  "))
	assert.Equal(t, -7.5, *parseFloat(" -7.5 "))

	for _, s := range []string{"True", "1", "yes", "T"} {
		assert.True(t, parseBool(s), s)
	}
	for _, s := range []string{"", "False", "0", "nan", "closed"} {
		assert.False(t, parseBool(s), s)
	}

	assert.Nil(t, parseDate("not a date"))
	require.NotNil(t, parseDate("2022-06-01T12:00:00.123456"))
	assert.Equal(t, 2022, parseDate("2022-06-01").Year())
}

func TestValidateRecord(t *testing.T) {
	lat, lon := 91.0, 10.0
	assert.Error(t, ValidateRecord(model.RawRecord{Lat: &lat, Lon: &lon}))

	lat = 45.0
	assert.NoError(t, ValidateRecord(model.RawRecord{Lat: &lat, Lon: &lon}))
	assert.NoError(t, ValidateRecord(model.RawRecord{}))

	lon = -181
	assert.Error(t, ValidateRecord(model.RawRecord{Lat: &lat, Lon: &lon}))
}
