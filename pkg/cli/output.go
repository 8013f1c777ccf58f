package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// Formatter writes a command result.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextWriter is implemented by results with a human-readable form.
type TextWriter interface {
	WriteText(w io.Writer) error
}

// TextFormatter prints TextWriters as themselves and anything else with %v.
type TextFormatter struct{}

// FormatTo implements Formatter.
func (TextFormatter) FormatTo(w io.Writer, data any) error {
	if tw, ok := data.(TextWriter); ok {
		return tw.WriteText(w)
	}
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter prints JSON, one document per call.
type JSONFormatter struct {
	Indent bool
}

// FormatTo implements Formatter.
func (f JSONFormatter) FormatTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// YAMLFormatter prints YAML.
type YAMLFormatter struct{}

// FormatTo implements Formatter.
func (YAMLFormatter) FormatTo(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// NewFormatter returns the formatter for format. An empty format is text.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case "", FormatText:
		return TextFormatter{}, nil
	case FormatJSON:
		return JSONFormatter{Indent: true}, nil
	case FormatYAML:
		return YAMLFormatter{}, nil
	default:
		return nil, NewConfigError("output", fmt.Sprintf("unsupported format %q (want text, json or yaml)", format))
	}
}
