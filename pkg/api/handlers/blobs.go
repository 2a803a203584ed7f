package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/utils"
)

// RegisterBlobs mounts upload and download for avatars and group
// images. References are opaque; ownership is not tracked.
func RegisterBlobs(r *mux.Router, d Deps) {
	r.HandleFunc("/blobs", d.uploadBlob).Methods(http.MethodPost)
	r.HandleFunc("/blobs/{ref}", d.downloadBlob).Methods(http.MethodGet)
}

func (d Deps) uploadBlob(w http.ResponseWriter, r *http.Request) {
	if _, status, msg := auth.ResolveCaller(r); status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	ref, err := d.Blobs.Save(r.Body)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]string{"ref": ref})
}

func (d Deps) downloadBlob(w http.ResponseWriter, r *http.Request) {
	rc, size, err := d.Blobs.Get(mux.Vars(r)["ref"])
	if err != nil {
		writeFault(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
}
