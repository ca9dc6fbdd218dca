// Package handler implements the PMAPI HTTP surface: the response envelope
// and exception translation, the CSV export streamer, and the per-entity
// handlers that translate HTTP verbs into entity store operations.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/config"
	"github.com/patemonitor/pmapi/internal/entity"
)

// API holds the shared dependencies of all entity handlers. Entity stores
// themselves are request-scoped: each handler constructs one, which loads
// the table's live schema for that request.
type API struct {
	db   *sqlx.DB
	cfg  *config.Config
	resp *Responder
}

// NewAPI creates the handler set.
func NewAPI(db *sqlx.DB, cfg *config.Config, resp *Responder) *API {
	return &API{db: db, cfg: cfg, resp: resp}
}

// Responder exposes the envelope builder, for the server's route-level
// handlers (404/405).
func (a *API) Responder() *Responder { return a.resp }

// Routes mounts every PMAPI endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/pate", a.search("pate", "", ""))
		r.Post("/pate", a.create("pate"))
		r.Get("/pate/{id}", a.get("pate"))

		r.Get("/session", a.search("testing_session", "pate_id", ""))
		r.Post("/session", a.createSession)
		r.Get("/session/{id}", a.get("testing_session"))

		r.Get("/note", a.search("note", "session_id", "created"))
		r.Post("/note", a.create("note"))
		r.Get("/note/{id}", a.get("note"))

		r.Get("/register", a.search("register", "pate_id", "retrieved"))
		r.Post("/register", a.create("register"))

		r.Get("/hitcount", a.search("hitcount", "session_id", "timestamp"))
		r.Post("/hitcount", a.create("hitcount"))
		r.Get("/housekeeping", a.search("housekeeping", "session_id", "timestamp"))
		r.Post("/housekeeping", a.create("housekeeping"))
		r.Get("/pulseheight", a.search("pulseheight", "session_id", "timestamp"))
		r.Post("/pulseheight", a.create("pulseheight"))

		r.Get("/command", a.search("command", "session_id", "created"))
		r.Post("/command", a.createCommand)
		r.Get("/command/{id}", a.get("command"))

		r.Get("/psu", a.getPSU)
		r.Patch("/psu", a.updatePSU)
	})

	r.Route("/csv", func(r chi.Router) {
		r.Get("/hitcount", a.exportCSV("hitcount", "session_id", "timestamp"))
		r.Get("/housekeeping", a.exportCSV("housekeeping", "session_id", "timestamp"))
		r.Get("/pulseheight", a.exportCSV("pulseheight", "session_id", "timestamp"))
	})
}

// search returns the collection GET handler for table. filterCol enables
// an equality filter query parameter of the same name; timeCol enables
// begin/end range parameters and result ordering.
func (a *API) search(table, filterCol, timeCol string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := entity.NewStore(r.Context(), a.db, table)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		opts, err := searchOpts(r, filterCol, timeCol)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		rows, err := store.Search(r.Context(), opts)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"data": rows})
	}
}

// get returns the fetch-by-primary-key handler for table.
func (a *API) get(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(chi.URLParam(r, "id"))
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		store, err := entity.NewStore(r.Context(), a.db, table)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		row, err := store.Get(r.Context(), id, queryFields(r)...)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"data": []interface{}{row}})
	}
}

// create returns the POST handler for table. The body is a flat JSON
// object of column values; the response carries the new row's id.
func (a *API) create(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values map[string]interface{}
		if err := readJSON(r, &values); err != nil {
			a.resp.Error(w, r, err)
			return
		}
		store, err := entity.NewStore(r.Context(), a.db, table)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		id, err := store.Insert(r.Context(), values)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"id": id})
	}
}

// createSession starts a new testing session. The session start time is
// recorded server-side; the caller supplies the instrument and firmware.
// The returned id is the explicit session identifier clients pass to every
// subsequent data write.
func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var values map[string]interface{}
	if err := readJSON(r, &values); err != nil {
		a.resp.Error(w, r, err)
		return
	}
	if _, ok := values["started"]; !ok {
		values["started"] = time.Now().UTC().Format("2006-01-02 15:04:05")
	}
	store, err := entity.NewStore(r.Context(), a.db, "testing_session")
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	id, err := store.Insert(r.Context(), values)
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"id": id})
}

// exportCSV returns the CSV export handler for table, sharing the search
// parameter handling of the JSON collection endpoint.
func (a *API) exportCSV(table, filterCol, timeCol string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := entity.NewStore(r.Context(), a.db, table)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		opts, err := searchOpts(r, filterCol, timeCol)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		rows, err := store.Query(r.Context(), opts)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		a.resp.StreamCSV(w, r, rows)
	}
}
