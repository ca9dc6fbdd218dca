package handler

import (
	"net/http"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/entity"
)

// commandRequest is the POST /api/command body.
type commandRequest struct {
	SessionID int64  `json:"session_id"`
	Interface string `json:"interface"`
	Command   string `json:"command"`
	Value     string `json:"value"`
}

// createCommand inserts a command into the async command log and blocks
// until the instrument daemon has handled it or the configured timeout
// expires. The handled row, including the daemon's result, is returned.
func (a *API) createCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := readJSON(r, &req); err != nil {
		a.resp.Error(w, r, err)
		return
	}
	if req.SessionID == 0 {
		a.resp.Error(w, r, apierr.New(apierr.InvalidArgument, "session_id is required"))
		return
	}

	cmds, err := entity.NewCommands(r.Context(), a.db, a.cfg.Command)
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	row, err := cmds.Request(r.Context(), req.SessionID, req.Interface, req.Command, req.Value)
	if err != nil {
		a.resp.Error(w, r, err)
		return
	}
	a.resp.Respond(w, r, http.StatusOK, map[string]interface{}{"data": []interface{}{row}})
}
