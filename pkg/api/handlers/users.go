package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/config"
	"parlor/pkg/faults"
	"parlor/pkg/logger"
	"parlor/pkg/metrics"
	"parlor/pkg/models"
	"parlor/pkg/utils"
	"parlor/pkg/webhook"
)

// RegisterUsers mounts the directory endpoints: the provider webhook,
// user listing and lookup, presence heartbeats and recent searches.
func RegisterUsers(r *mux.Router, d Deps) {
	r.HandleFunc("/users/sync", d.syncUser).Methods(http.MethodPost)
	r.HandleFunc("/users", d.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/me", d.currentUser).Methods(http.MethodGet)
	r.HandleFunc("/users/external/{externalId}", d.getUserByExternal).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", d.getUser).Methods(http.MethodGet)
	r.HandleFunc("/presence", d.heartbeat).Methods(http.MethodPost)
	r.HandleFunc("/searches", d.addSearch).Methods(http.MethodPost)
	r.HandleFunc("/searches", d.listSearches).Methods(http.MethodGet)
}

// syncUser handles identity-provider deliveries. Missing or invalid
// signatures are a 400 (the provider treats it as a permanent failure);
// storage trouble is a 500 so the delivery is retried.
func (d Deps) syncUser(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	secret := config.GetWebhookSecret()
	if secret == "" {
		logger.Error("webhook_secret_missing")
		utils.JSONError(w, http.StatusInternalServerError, "webhook not configured")
		return
	}
	if err := webhook.Verify(secret, r.Header, body, d.Cfg.Security.Webhook.Tolerance.Std(), time.Now()); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		logger.Warn("webhook_rejected", "err", err.Error())
		utils.JSONError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	ev, err := webhook.Parse(body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch ev.Type {
	case "user.created", "user.updated":
		ident, err := webhook.DecodeIdentity(ev.Data)
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.Type, "malformed").Inc()
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := d.Dir.UpsertUser(ident.ExternalID, ident.Email, ident.Name, ident.AvatarURL)
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.Type, "failed").Inc()
			logger.Error("webhook_upsert_failed", "external", ident.ExternalID, "err", err.Error())
			utils.JSONError(w, http.StatusInternalServerError, "store failure")
			return
		}
		metrics.WebhookEvents.WithLabelValues(ev.Type, "ok").Inc()
		utils.JSONWrite(w, http.StatusOK, map[string]string{"user_id": id})
	default:
		// unhandled event types are acknowledged so the provider
		// does not retry them forever
		metrics.WebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (d Deps) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := d.Dir.List()
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"users": d.withPresence(users)})
}

func (d Deps) currentUser(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	u, err := d.Dir.Get(callerID)
	if errors.Is(err, faults.ErrNotFound) {
		// signed ids may be provider identities rather than internal ones
		u, err = d.Dir.FindByExternalID(callerID)
	}
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, d.presenceView(u))
}

func (d Deps) getUserByExternal(w http.ResponseWriter, r *http.Request) {
	u, err := d.Dir.FindByExternalID(mux.Vars(r)["externalId"])
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, d.presenceView(u))
}

func (d Deps) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := d.Dir.Get(mux.Vars(r)["id"])
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, d.presenceView(u))
}

func (d Deps) heartbeat(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := d.Dir.UpdatePresence(callerID); err != nil {
		writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addSearchReq struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

func (d Deps) addSearch(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req addSearchReq
	if !decodeValid(w, r, &req) {
		return
	}
	if err := d.Dir.AddRecentSearch(callerID, req.UserID); err != nil {
		writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Deps) listSearches(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	users, err := d.Dir.RecentSearches(callerID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"users": d.withPresence(users)})
}

// presenceView decorates a user with the online flag derived from the
// configured threshold.
func (d Deps) presenceView(u *models.User) map[string]any {
	b, _ := json.Marshal(u)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	m["online"] = d.Dir.IsOnline(u, d.Cfg.Presence.OnlineThreshold.Std())
	return m
}

func (d Deps) withPresence(users []*models.User) []map[string]any {
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, d.presenceView(u))
	}
	return out
}
