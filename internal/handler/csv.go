package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
)

// StreamCSV writes a query result as a CSV attachment, one chunk per row.
// The shared buffer is reset after every chunk, so arbitrarily large
// results stream in bounded memory. The cursor is consumed single-pass and
// closed on return; a client that stops reading simply ends the loop via
// the write error.
func (rp *Responder) StreamCSV(w http.ResponseWriter, r *http.Request, rows *sqlx.Rows) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		rp.Error(w, r, fmt.Errorf("csv export: read column names: %w", err))
		return
	}

	filename := time.Now().Format("2006-01-02 15.04.05") + ".csv"
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	writeChunk := func(record []string) error {
		if err := cw.Write(record); err != nil {
			return err
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
		buf.Reset()
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := writeChunk(columns); err != nil {
		rp.logger.Warn("csv export aborted on header", "error", err)
		return
	}

	record := make([]string, len(columns))
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			rp.logger.Error("csv export scan failed", "error", err)
			return
		}
		for i, v := range values {
			record[i] = csvField(v)
		}
		if err := writeChunk(record); err != nil {
			// Client went away; nothing useful left to do.
			rp.logger.Warn("csv export aborted mid-stream", "error", err)
			return
		}
	}
	if err := rows.Err(); err != nil {
		rp.logger.Error("csv export cursor failed", "error", err)
	}
}

// csvField renders one column value as CSV text. NULL becomes the empty
// field.
func csvField(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
