package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/params"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// Report is a View that writes every computed stat as a Markdown table and,
// unless format = "markdown", converts it to HTML.
//
//	output = "out/report.html"
//	title = "Weekly census"
//	format = "html"
type Report struct {
	plugin.BasePlugin
}

// ValidateConfig implements plugin.ConfigValidator.
func (r *Report) ValidateConfig(cfg config.Tree) error {
	if output, _ := cfg.String("output"); output == "" {
		return errors.ConfigError("report requires 'output'").Build()
	}
	return nil
}

// Render implements plugin.View.
func (r *Report) Render(_ context.Context, stats *params.Param[string, any]) error {
	cfg := r.Config()
	output, ok := cfg.String("output")
	if !ok || output == "" {
		return errors.ConfigError("report requires 'output'").Build()
	}
	title, ok := cfg.String("title")
	if !ok || title == "" {
		title = "Report"
	}
	format, _ := cfg.String("format")

	doc, err := ReportMarkdown(title, stats)
	if err != nil {
		return err
	}
	if !strings.EqualFold(format, "markdown") {
		doc, err = ReportHTML(doc)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create report directory").
			WithContext("path", output).
			Build()
	}
	if err := os.WriteFile(output, doc, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write report").
			WithContext("path", output).
			Build()
	}
	return nil
}

// ReportMarkdown renders stats as a two column Markdown table under a heading.
func ReportMarkdown(title string, stats *params.Param[string, any]) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n| Stat | Value |\n| --- | --- |\n", title)
	for _, name := range stats.Keys() {
		value, err := stats.Get(name)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "| %s | %s |\n", cell(name), cell(fmt.Sprint(value)))
	}
	return buf.Bytes(), nil
}

// ReportHTML converts Markdown to HTML with table support.
func ReportHTML(markdown []byte) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert(markdown, &buf); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to render report").Build()
	}
	return buf.Bytes(), nil
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

var _ plugin.View = (*Report)(nil)
