package extract

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bill-extract/internal/model"
)

// Policy decides which value survives when a category appears more than once.
type Policy int

const (
	// LastWins keeps the most recently seen value.
	LastWins Policy = iota
	// MaxAbsWins keeps the value with the largest magnitude.
	MaxAbsWins
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	if p == MaxAbsWins {
		return "max_abs"
	}
	return "last"
}

// Category maps description aliases to a deduction key.
type Category struct {
	Key     model.DeductionKey
	Aliases []string
	Policy  Policy
}

// Taxonomy is an ordered, read-only list of deduction categories.
// The first category with a matching alias wins, so specific aliases
// must come before generic ones.
type Taxonomy struct {
	categories []Category
}

// DefaultTaxonomy returns the built-in deduction categories.
func DefaultTaxonomy() Taxonomy {
	t, _ := newTaxonomy([]Category{
		{Key: model.DeductionTDS, Aliases: []string{"tds", "tax deducted at source"}},
		{Key: model.DeductionRetention, Aliases: []string{"retention"}},
		{Key: model.DeductionSubContractLabour, Aliases: []string{
			"sub - contract (labour)", "sub-contract (labour)", "sub contract (labour)", "sub-contract labour", "sub contract labour",
		}},
		{Key: model.DeductionPFRecovered, Aliases: []string{
			"pf/eps recovered", "pf / eps recovered", "pf recovery from sc", "pf recovered",
		}, Policy: MaxAbsWins},
		{Key: model.DeductionESIEmployer, Aliases: []string{"esi employer"}},
		{Key: model.DeductionESIEmployee, Aliases: []string{"esi employee"}},
		{Key: model.DeductionRoundingOff, Aliases: []string{"rounding"}},
	})
	return t
}

func newTaxonomy(cats []Category) (Taxonomy, error) {
	seen := make(map[model.DeductionKey]bool, len(cats))
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		if !model.IsDeductionKey(c.Key) {
			return Taxonomy{}, eris.Errorf("taxonomy: unknown deduction key %q", c.Key)
		}
		if seen[c.Key] {
			return Taxonomy{}, eris.Errorf("taxonomy: duplicate deduction key %q", c.Key)
		}
		seen[c.Key] = true

		aliases := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			if a = collapseSpace(strings.ToLower(a)); a != "" {
				aliases = append(aliases, a)
			}
		}
		if len(aliases) == 0 {
			return Taxonomy{}, eris.Errorf("taxonomy: category %q has no aliases", c.Key)
		}
		out = append(out, Category{Key: c.Key, Aliases: aliases, Policy: c.Policy})
	}
	return Taxonomy{categories: out}, nil
}

// Classify returns the first category with an alias contained in desc.
func (t Taxonomy) Classify(desc string) (Category, bool) {
	d := collapseSpace(strings.ToLower(desc))
	for _, c := range t.categories {
		for _, a := range c.Aliases {
			if strings.Contains(d, a) {
				return c, true
			}
		}
	}
	return Category{}, false
}

// Categories returns a copy of the ordered categories.
func (t Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Key: c.Key, Aliases: append([]string(nil), c.Aliases...), Policy: c.Policy}
	}
	return out
}

// Empty reports whether the taxonomy has no categories.
func (t Taxonomy) Empty() bool { return len(t.categories) == 0 }

type taxonomyFile struct {
	Categories []struct {
		Key     string   `yaml:"key"`
		Aliases []string `yaml:"aliases"`
		Policy  string   `yaml:"policy"`
	} `yaml:"categories"`
}

// ParseTaxonomy reads a YAML category list. Order in the file is match order.
//
//	categories:
//	  - key: PF_OR_EPS_RECOVERED
//	    aliases: ["pf/eps recovered"]
//	    policy: max_abs
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Taxonomy{}, eris.Wrap(err, "taxonomy: parse yaml")
	}
	if len(f.Categories) == 0 {
		return Taxonomy{}, eris.New("taxonomy: no categories")
	}

	cats := make([]Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		var p Policy
		switch strings.ToLower(strings.TrimSpace(c.Policy)) {
		case "", "last":
			p = LastWins
		case "max_abs":
			p = MaxAbsWins
		default:
			return Taxonomy{}, eris.Errorf("taxonomy: unknown policy %q for %s", c.Policy, c.Key)
		}
		cats = append(cats, Category{
			Key:     model.DeductionKey(strings.TrimSpace(c.Key)),
			Aliases: c.Aliases,
			Policy:  p,
		})
	}
	return newTaxonomy(cats)
}

// LoadTaxonomy reads a taxonomy override file.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	return ParseTaxonomy(data)
}
