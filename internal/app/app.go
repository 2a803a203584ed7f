// Package app wires configuration, storage, domain services and the
// HTTP server into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"parlor/internal/compact"
	"parlor/pkg/api/handlers"
	"parlor/pkg/blob"
	"parlor/pkg/config"
	"parlor/pkg/directory"
	"parlor/pkg/live"
	"parlor/pkg/messages"
	"parlor/pkg/registry"
	"parlor/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	st    store.Store
	dir   *directory.Directory
	reg   *registry.Registry
	msg   *messages.Service
	blobs *blob.Store
	hub   *live.Hub

	srv           *http.Server
	cancelCompact context.CancelFunc
}

// New opens storage and builds the service graph. It does not start
// the HTTP server; call Run for that.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	installRuntimeKeys(eff.Config)

	st, err := store.OpenPebble(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", eff.DBPath, err)
	}

	blobs, err := blob.Open(eff.Config.Blobs.Dir, uint64(eff.Config.Blobs.MaxSize))
	if err != nil {
		st.Close()
		return nil, err
	}

	dir := directory.New(st, eff.Config.Policy.UniqueEmailName)
	reg := registry.New(st, dir, eff.Config.Conversations.PreviewScan)
	msg := messages.New(st, reg)

	return &App{
		eff:     eff,
		version: version,
		st:      st,
		dir:     dir,
		reg:     reg,
		msg:     msg,
		blobs:   blobs,
		hub:     live.NewHub(),
	}, nil
}

// installRuntimeKeys publishes the key sets consulted by the auth layer.
// Backend API keys double as user-signature signing secrets.
func installRuntimeKeys(cfg *config.Config) {
	rc := &config.RuntimeConfig{
		BackendKeys:   map[string]struct{}{},
		SigningKeys:   map[string]struct{}{},
		WebhookSecret: cfg.Security.Webhook.Secret,
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		rc.BackendKeys[k] = struct{}{}
		rc.SigningKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		rc.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(rc)
}

// Run starts the hub, the compaction scheduler and the HTTP server,
// then blocks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run()

	cancel, err := compact.Start(ctx, a.st, a.eff.Config.Compaction)
	if err != nil {
		return err
	}
	a.cancelCompact = cancel

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.stop()
		return nil
	case err := <-errCh:
		a.stop()
		return err
	}
}

func (a *App) stop() {
	if a.cancelCompact != nil {
		a.cancelCompact()
	}
	if a.srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), httpDrainTimeout)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
	}
	a.hub.Stop()
	_ = a.st.Close()
}

// deps bundles the wired services for the handler layer.
func (a *App) deps() handlers.Deps {
	return handlers.Deps{
		Dir:   a.dir,
		Reg:   a.reg,
		Msg:   a.msg,
		Blobs: a.blobs,
		Pub:   a.hub,
		Hub:   a.hub,
		Cfg:   a.eff.Config,
	}
}
