package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/filegate/pkg/audit"
)

// JSONExporter writes records as a JSON array.
type JSONExporter struct {
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records as one JSON array.
func (e *JSONExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	if records == nil {
		records = []*audit.Record{}
	}

	var (
		data []byte
		err  error
	)
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return audit.NewExportError("json", len(records), err)
	}
	if _, err := w.Write(data); err != nil {
		return audit.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel as one JSON array, one
// record at a time.
func (e *JSONExporter) ExportStream(ctx context.Context, records <-chan *audit.Record, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return audit.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-records:
			if !ok {
				tail := "]"
				if e.Pretty && count > 0 {
					tail = "\n]"
				}
				if _, err := io.WriteString(w, tail); err != nil {
					return audit.NewExportError("json", count, err)
				}
				return nil
			}

			sep := ","
			if count == 0 {
				sep = ""
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return audit.NewExportError("json", count, err)
			}

			data, err := e.marshal(r)
			if err != nil {
				return audit.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return audit.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) marshal(r *audit.Record) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(r, "  ", "  ")
	}
	return json.Marshal(r)
}
