package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/utils"
)

// RegisterLive mounts the websocket push endpoint.
func RegisterLive(r *mux.Router, d Deps) {
	r.HandleFunc("/live", d.serveLive).Methods(http.MethodGet)
}

func (d Deps) serveLive(w http.ResponseWriter, r *http.Request) {
	if d.Hub == nil {
		utils.JSONError(w, http.StatusNotFound, "live updates disabled")
		return
	}
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	d.Hub.Serve(w, r, callerID)
}
