package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type summary struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func (s summary) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, s.Name+" has "+strings.Repeat("*", s.Count)+"\n")
	return err
}

func TestFormatters(t *testing.T) {
	data := summary{Name: "corpus", Count: 3}

	t.Run("text uses TextWriter", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (TextFormatter{}).FormatTo(&buf, data); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		if buf.String() != "corpus has ***\n" {
			t.Errorf("FormatTo() = %q", buf.String())
		}
	})

	t.Run("text falls back to %v", func(t *testing.T) {
		var buf bytes.Buffer
		_ = (TextFormatter{}).FormatTo(&buf, 42)
		if buf.String() != "42\n" {
			t.Errorf("FormatTo() = %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (JSONFormatter{Indent: true}).FormatTo(&buf, data); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var got summary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got != data {
			t.Errorf("decoded %+v, %v", got, err)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (YAMLFormatter{}).FormatTo(&buf, data); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var got summary
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil || got != data {
			t.Errorf("decoded %+v, %v", got, err)
		}
	})
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		wantErr bool
	}{
		{"", false},
		{FormatText, false},
		{FormatJSON, false},
		{FormatYAML, false},
		{"xml", true},
	}
	for _, tt := range tests {
		_, err := NewFormatter(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewFormatter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}
