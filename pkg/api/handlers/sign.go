package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/logger"
	"parlor/pkg/utils"
)

// RegisterSigning mounts /_sign. A trusted backend calls it to obtain
// the X-User-Signature its frontend will present; the caller's own API
// key is the signing secret.
func RegisterSigning(r *mux.Router) {
	r.HandleFunc("/_sign", signUser).Methods(http.MethodPost)
}

type signReq struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

func signUser(w http.ResponseWriter, r *http.Request) {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" && role != "admin" {
		logger.Warn("sign_forbidden", "role", role, "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	hdr := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		key = strings.TrimSpace(hdr[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	var req signReq
	if !decodeValid(w, r, &req) {
		return
	}
	sig := auth.SignUserID(req.UserID, key)
	utils.JSONWrite(w, http.StatusOK, map[string]string{"user_id": req.UserID, "signature": sig})
}
