package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/entity"
)

// readJSON decodes the request body as JSON into v. The body is closed
// after decoding regardless of success or failure. Malformed bodies are an
// InvalidArgument error.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Wrap(apierr.InvalidArgument, "malformed JSON body: "+err.Error(), err)
	}
	return nil
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryFields parses the comma-separated "fields" parameter into an
// include list. Empty means all columns.
func queryFields(r *http.Request) []string {
	raw := queryString(r, "fields")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

// queryLimit parses the "limit" parameter; 0 means unlimited.
func queryLimit(r *http.Request) (int, error) {
	raw := queryString(r, "limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apierr.New(apierr.InvalidArgument, "limit must be a non-negative integer")
	}
	return n, nil
}

// pathID parses a decimal path parameter into an int64 primary key.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierr.New(apierr.InvalidArgument, "identifier must be an integer: "+raw)
	}
	return id, nil
}

// searchOpts assembles common search options from query parameters:
// fields, limit, an optional equality filter on filterCol, and optional
// begin/end bounds on timeCol.
func searchOpts(r *http.Request, filterCol, timeCol string) (entity.SearchOpts, error) {
	opts := entity.SearchOpts{Fields: queryFields(r)}

	limit, err := queryLimit(r)
	if err != nil {
		return opts, err
	}
	opts.Limit = limit

	if filterCol != "" {
		if v := queryString(r, filterCol); v != "" {
			opts.Conditions = append(opts.Conditions,
				entity.Condition{Column: filterCol, Op: "=", Value: v})
		}
	}
	if timeCol != "" {
		if v := queryString(r, "begin"); v != "" {
			opts.Conditions = append(opts.Conditions,
				entity.Condition{Column: timeCol, Op: ">=", Value: v})
		}
		if v := queryString(r, "end"); v != "" {
			opts.Conditions = append(opts.Conditions,
				entity.Condition{Column: timeCol, Op: "<=", Value: v})
		}
		opts.OrderBy = timeCol
	}
	return opts, nil
}
