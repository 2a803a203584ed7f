// Package handlers implements the /v1 HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"parlor/pkg/blob"
	"parlor/pkg/config"
	"parlor/pkg/directory"
	"parlor/pkg/faults"
	"parlor/pkg/live"
	"parlor/pkg/logger"
	"parlor/pkg/messages"
	"parlor/pkg/registry"
	"parlor/pkg/utils"
)

// Deps carries the wired services every handler group needs.
type Deps struct {
	Dir   *directory.Directory
	Reg   *registry.Registry
	Msg   *messages.Service
	Blobs *blob.Store
	Pub   live.Publisher
	Hub   *live.Hub // nil when the live surface is disabled
	Cfg   *config.Config
}

var validate = validator.New()

// decodeValid decodes a JSON body into dst and runs struct validation.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeFault maps domain errors onto HTTP statuses.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, faults.ErrUnauthorized):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, faults.ErrConflict):
		utils.JSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, faults.ErrInvalid):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, faults.ErrUpstream):
		logger.Warn("upstream_failed", "path", r.URL.Path, "err", err.Error())
		utils.JSONError(w, http.StatusBadGateway, "upstream failure")
	default:
		logger.Error("handler_failed", "path", r.URL.Path, "err", err.Error())
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
