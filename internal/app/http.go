package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parlor/pkg/api"
	"parlor/pkg/auth"
	"parlor/pkg/banner"
)

const httpDrainTimeout = 10 * time.Second

func (a *App) printBanner() {
	banner.Print(a.eff, a.version)
}

func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Router(a.deps()))
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	// a cheap store round-trip proves pebble is answering
	if err := a.st.Scan("readyz:probe:", func(string, []byte) error { return nil }); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler chain, starts the server in a goroutine
// and returns its error channel.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	sec := a.eff.Config.Security
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		BackendKeys:    keySet(sec.APIKeys.Backend),
		FrontendKeys:   keySet(sec.APIKeys.Frontend),
		AdminKeys:      keySet(sec.APIKeys.Admin),
	}

	a.srv = &http.Server{
		Addr:    a.eff.Addr,
		Handler: auth.Gateway(secCfg)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
