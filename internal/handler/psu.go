package handler

import (
	"net/http"

	"github.com/patemonitor/pmapi/internal/entity"
)

// getPSU returns the power supply's singleton state row.
func (a *API) getPSU(w http.ResponseWriter, r *http.Request) {
	psu, err := entity.NewPSU(r.Context(), a.db)
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	row, err := psu.Get(r.Context())
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"data": []interface{}{row}})
}

// updatePSU patches the power supply settings and returns the updated row,
// whose modified timestamp the database trigger has bumped.
func (a *API) updatePSU(w http.ResponseWriter, r *http.Request) {
	var values map[string]interface{}
	if err := readJSON(r, &values); err != nil {
		a.resp.Error(w, r, err)
		return
	}
	psu, err := entity.NewPSU(r.Context(), a.db)
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	if err := psu.Update(r.Context(), values); err != nil {
		a.resp.Error(w, r, err)
		return
	}
	row, err := psu.Get(r.Context())
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"data": []interface{}{row}})
}
