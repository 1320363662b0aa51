package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompanyName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty input", input: "", want: "Unknown"},
		{name: "blank input", input: "   \t ", want: "Unknown"},
		{name: "co with dot", input: "Apex Manufacturing Co.", want: "Apex Manufacturing"},
		{name: "inc with dot", input: "Acme Inc.", want: "Acme"},
		{name: "upper case", input: "ACME", want: "Acme"},
		{name: "sa suffix", input: "Green Textiles SA", want: "Green Textiles"},
		{name: "gmbh lower case", input: "Weber Textil gmbh", want: "Weber Textil"},
		{name: "and co", input: "Smith & Co.", want: "Smith"},
		{name: "stacked suffixes", input: "Atlas Holdings Company Ltd", want: "Atlas Holdings"},
		{name: "suffix exposed by punctuation", input: "Apex Co,", want: "Apex"},
		{name: "suffix inside name kept", input: "Incredible Fabrics", want: "Incredible Fabrics"},
		{name: "lone suffix kept", input: "Company", want: "Company"},
		{name: "punctuation to spaces", input: "Tex/Mode (Maroc)", want: "Tex Mode Maroc"},
		{name: "ampersand and hyphen kept", input: "black & white-wear", want: "Black & White-wear"},
		{name: "whitespace collapsed", input: "  Fil   d'Or  ", want: "Fil D Or"},
		{name: "accents kept", input: "CONFECÇÕES DO NORTE LDA", want: "Confecções Do Norte Lda"},
		{name: "only punctuation", input: "!!!", want: "Unknown"},
		{name: "pipe replaced", input: "Alpha|Beta", want: "Alpha Beta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompanyName(tt.input))
		})
	}
}

func TestCompanyNameDecomposedInput(t *testing.T) {
	composed := "Soci\u00e9t\u00e9 G\u00e9n\u00e9rale SA"
	decomposed := "Socie\u0301te\u0301 Ge\u0301ne\u0301rale SA"

	assert.Equal(t, "Soci\u00e9t\u00e9 G\u00e9n\u00e9rale", CompanyName(decomposed))
	assert.Equal(t, CompanyName(composed), CompanyName(decomposed))
}

func TestFacilityName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty input", input: "", want: "Unknown Facility"},
		{name: "title cased", input: "textile plant", want: "Textile Plant"},
		{name: "no suffix stripping", input: "Atlas Weaving Ltd.", want: "Atlas Weaving Ltd."},
		{name: "allowed punctuation kept", input: "Unit 3 (North), O'Brien & Sons", want: "Unit 3 (north), O'brien & Sons"},
		{name: "other punctuation replaced", input: "Plant #4 / Zone*B", want: "Plant 4 Zone B"},
		{name: "whitespace collapsed", input: "  Dye   House ", want: "Dye House"},
		{name: "pipe replaced", input: "Mill|North", want: "Mill North"},
		{name: "only symbols", input: "@@", want: "Unknown Facility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FacilityName(tt.input))
		})
	}
}

func TestNormalizersAreIdempotent(t *testing.T) {
	samples := []string{
		"",
		"Acme Inc.",
		"ACME",
		"Apex Manufacturing Co.",
		"Smith & Co.",
		"Apex Co,",
		"Green Textiles SA",
		"  Fil   d'Or  ",
		"Tex/Mode (Maroc)",
		"Unit 3 (North), O'Brien & Sons",
		"CONFECÇÕES DO NORTE LDA",
		"İSTANBUL ÖRME",
		"ΟΔΟΣ ΥΦΑΝΣΗΣ",
		"atlas holdings company ltd.",
		"Unknown",
		"Unknown Facility",
		"MAR",
		"moroccan",
		"côte d'ivoire",
	}

	for _, s := range samples {
		t.Run(s, func(t *testing.T) {
			once := CompanyName(s)
			assert.Equal(t, once, CompanyName(once), "CompanyName")

			once = FacilityName(s)
			assert.Equal(t, once, FacilityName(once), "FacilityName")

			once = Country(s)
			assert.Equal(t, once, Country(once), "Country")
		})
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Green Textiles", TitleCase("GREEN   textiles"))
	assert.Equal(t, "", TitleCase("   "))
	assert.Equal(t, "Éco Mode", TitleCase("éco MODE"))
}
