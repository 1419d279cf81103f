package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/extract"
	"github.com/sells-group/bill-extract/internal/patterns"
)

// newExtractor builds the field extractor from the extract section.
func newExtractor(c config.ExtractConfig) (*extract.Extractor, error) {
	ec := extract.Config{
		Registry: patterns.New(patterns.Options{
			LabelLookahead:  c.LabelLookahead,
			AnchorLookahead: c.AnchorLookahead,
		}),
		AmountWindow: c.AmountWindow,
	}
	if c.TaxonomyFile != "" {
		tax, err := extract.LoadTaxonomy(c.TaxonomyFile)
		if err != nil {
			return nil, eris.Wrap(err, "init: taxonomy")
		}
		ec.Taxonomy = tax
	}
	return extract.New(ec), nil
}
