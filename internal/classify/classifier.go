// Package classify flags companies whose names mention sustainability
// related keywords.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/oar-pipeline/internal/model"
)

// DefaultKeywords is used when no keyword file is configured.
var DefaultKeywords = []string{
	"sustainable", "sustainability", "green", "eco-friendly",
	"environmental", "renewable", "recycle", "circular",
	"carbon", "emission", "ESG", "ethical", "organic",
	"fair trade", "responsibility", "clean", "energy",
}

// Result is the classification of one company.
type Result struct {
	CompanyID       string   `json:"company_id"`
	CompanyName     string   `json:"company_name"`
	HasMatch        bool     `json:"has_match"`
	MatchedKeywords []string `json:"matched_keywords"`
	MatchCount      int      `json:"match_count"`
}

// Stats summarizes a classification run.
type Stats struct {
	Companies int     `json:"companies"`
	Matched   int     `json:"matched"`
	MatchRate float64 `json:"match_rate"`
}

// nonWord matches one character that cannot be part of a word. RE2's \b
// only knows ASCII letters, so accented neighbours would count as edges.
const nonWord = `[^\p{L}\p{N}_]`

type keyword struct {
	word string
	re   *regexp.Regexp
}

// Classifier matches a fixed keyword list against company names.
type Classifier struct {
	keywords []keyword
	log      *zap.Logger
}

// NewClassifier compiles keywords into case-insensitive whole-word
// patterns. Blank and repeated keywords are ignored.
func NewClassifier(log *zap.Logger, keywords []string) (*Classifier, error) {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Classifier{log: log}
	seen := make(map[string]bool)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true

		re, err := regexp.Compile(`(?i)(?:^|` + nonWord + `)` + regexp.QuoteMeta(k) + `(?:$|` + nonWord + `)`)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keyword %q: %w", k, err)
		}
		c.keywords = append(c.keywords, keyword{word: k, re: re})
	}
	if len(c.keywords) == 0 {
		return nil, fmt.Errorf("no keywords configured")
	}
	return c, nil
}

// Keywords returns the keywords in match order.
func (c *Classifier) Keywords() []string {
	words := make([]string, len(c.keywords))
	for i, k := range c.keywords {
		words[i] = k.word
	}
	return words
}

// Match returns the keywords found in text, in keyword order.
func (c *Classifier) Match(text string) []string {
	var found []string
	for _, k := range c.keywords {
		if k.re.MatchString(text) {
			found = append(found, k.word)
		}
	}
	return found
}

// Classify matches every company's canonical and original name.
func (c *Classifier) Classify(companies []model.Company) ([]Result, Stats) {
	results := make([]Result, 0, len(companies))
	stats := Stats{Companies: len(companies)}

	for _, company := range companies {
		text := company.CanonicalName
		if company.OriginalName != nil {
			text += " " + *company.OriginalName
		}

		found := c.Match(text)
		results = append(results, Result{
			CompanyID:       company.CompanyID,
			CompanyName:     company.CanonicalName,
			HasMatch:        len(found) > 0,
			MatchedKeywords: found,
			MatchCount:      len(found),
		})
		if len(found) > 0 {
			stats.Matched++
		}
	}
	if stats.Companies > 0 {
		stats.MatchRate = float64(stats.Matched) / float64(stats.Companies)
	}

	c.log.Info("Classified companies",
		zap.Int("companies", stats.Companies),
		zap.Int("matched", stats.Matched),
		zap.Float64("match_rate", stats.MatchRate))
	return results, stats
}

type keywordFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadKeywords reads a YAML file of the form
//
//	keywords:
//	  - recycled
//	  - organic cotton
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}

	var f keywordFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse keyword file %s: %w", path, err)
	}
	if len(f.Keywords) == 0 {
		return nil, fmt.Errorf("keyword file %s lists no keywords", path)
	}
	return f.Keywords, nil
}
