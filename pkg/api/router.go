// Package api assembles the HTTP routing table.
package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"parlor/pkg/api/handlers"
	"parlor/pkg/auth"
	"parlor/pkg/metrics"
)

// Router builds the /v1 routing table. The identity middleware wraps
// everything under /v1 except the provider webhook, which authenticates
// with its own signature scheme.
func Router(d handlers.Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(signedUserExceptWebhook)

	handlers.RegisterUsers(v1, d)
	handlers.RegisterConversations(v1, d)
	handlers.RegisterMessages(v1, d)
	handlers.RegisterBlobs(v1, d)
	handlers.RegisterLive(v1, d)
	handlers.RegisterSigning(r)
	return r
}

func signedUserExceptWebhook(next http.Handler) http.Handler {
	signed := auth.RequireSignedUser(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/users/sync" {
			next.ServeHTTP(w, r)
			return
		}
		signed.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the wrapper.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status/100)+"xx").Inc()
	})
}
