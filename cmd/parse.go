package main

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bill-extract/internal/extract"
	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/ocr"
)

var (
	parseYAML     bool
	parseShowText bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Extract one bill and print the record with its resolution trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("parse"); err != nil {
			return err
		}
		ext, err := newExtractor(cfg.Extract)
		if err != nil {
			return err
		}
		text, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return eris.Wrap(err, "parse: text extractor")
		}
		defer ocr.Close(text) //nolint:errcheck

		path := args[0]
		raw, err := text.ExtractText(cmd.Context(), path)
		if err != nil {
			// Still report the default record.
			zap.L().Warn("parse: text extraction failed", zap.String("path", path), zap.Error(err))
			raw = ""
		}

		res := ext.Extract(model.Document{SourceName: filepath.Base(path), RawText: raw})
		return writeResult(cmd.OutOrStdout(), res, raw)
	},
}

type parseOutput struct {
	extract.ResultView `yaml:",inline"`
	Text               string `json:"text,omitempty" yaml:"text,omitempty"`
}

func writeResult(w io.Writer, res extract.Result, raw string) error {
	out := parseOutput{ResultView: res.View()}
	if parseShowText {
		out.Text = raw
	}

	if parseYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "parse: encode yaml")
		}
		return eris.Wrap(enc.Close(), "parse: flush yaml")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(out), "parse: encode json")
}

func init() {
	parseCmd.Flags().BoolVar(&parseYAML, "yaml", false, "print YAML instead of JSON")
	parseCmd.Flags().BoolVar(&parseShowText, "show-text", false, "include the extracted text in the output")
	rootCmd.AddCommand(parseCmd)
}
