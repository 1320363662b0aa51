package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oar-pipeline/internal/model"
)

func TestMatch(t *testing.T) {
	c, err := NewClassifier(nil, DefaultKeywords)
	require.NoError(t, err)

	tests := []struct {
		text string
		want []string
	}{
		{"Green Textiles", []string{"green"}},
		{"GREEN TEXTILES", []string{"green"}},
		{"Greenfield Apparel", nil},
		{"Eco-Friendly Fabrics", []string{"eco-friendly"}},
		{"Fair Trade Cotton Co", []string{"fair trade"}},
		{"Clean Energy Mills", []string{"clean", "energy"}},
		{"Esg Partners", []string{"ESG"}},
		{"Ségreen", nil},
		{"Cleanéa Textiles", nil},
		{"Greenß Mode", nil},
		{"Café Green Filature", []string{"green"}},
		{"Tissage Écologique (green)", []string{"green"}},
		{"green_mills", nil},
		{"Unknown", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Match(tt.text))
		})
	}
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(nil, DefaultKeywords)
	require.NoError(t, err)

	companies := []model.Company{
		{CompanyID: "C1", CanonicalName: "Green Textiles", OriginalName: model.StringPtr("Green Textiles SA")},
		{CompanyID: "C2", CanonicalName: "Atlas", OriginalName: model.StringPtr("Atlas Organic Cotton")},
		{CompanyID: "C3", CanonicalName: "Weber Textil"},
		{CompanyID: "C4", CanonicalName: "Moda"},
	}

	results, stats := c.Classify(companies)

	require.Len(t, results, 4)
	assert.Equal(t, Result{CompanyID: "C1", CompanyName: "Green Textiles", HasMatch: true, MatchedKeywords: []string{"green"}, MatchCount: 1}, results[0])
	assert.Equal(t, []string{"organic"}, results[1].MatchedKeywords, "original name is searched too")
	assert.False(t, results[2].HasMatch)
	assert.Zero(t, results[3].MatchCount)
	assert.Equal(t, Stats{Companies: 4, Matched: 2, MatchRate: 0.5}, stats)
}

func TestClassifyEmpty(t *testing.T) {
	c, err := NewClassifier(nil, DefaultKeywords)
	require.NoError(t, err)

	results, stats := c.Classify(nil)
	assert.Empty(t, results)
	assert.Equal(t, Stats{}, stats)
}

func TestNewClassifierRejectsEmptyList(t *testing.T) {
	_, err := NewClassifier(nil, []string{" ", ""})
	assert.Error(t, err)
}

func TestNewClassifierDeduplicates(t *testing.T) {
	c, err := NewClassifier(nil, []string{"Green", "green", " recycled "})
	require.NoError(t, err)
	assert.Equal(t, []string{"Green", "recycled"}, c.Keywords())
}

func TestLoadKeywords(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(good, []byte("keywords:\n  - recycled\n  - organic cotton\n"), 0o644))
	words, err := LoadKeywords(good)
	require.NoError(t, err)
	assert.Equal(t, []string{"recycled", "organic cotton"}, words)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("keywords: []\n"), 0o644))
	_, err = LoadKeywords(empty)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("keywords: [unterminated\n"), 0o644))
	_, err = LoadKeywords(broken)
	assert.Error(t, err)

	_, err = LoadKeywords(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
