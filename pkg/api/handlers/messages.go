package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/metrics"
	"parlor/pkg/models"
	"parlor/pkg/utils"
)

// RegisterMessages mounts send, listing and the per-message mutations.
func RegisterMessages(r *mux.Router, d Deps) {
	r.HandleFunc("/conversations/{id}/messages", d.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", d.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", d.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/hide", d.hideMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions", d.toggleReaction).Methods(http.MethodPost)
}

type sendMessageReq struct {
	Content string `json:"content" validate:"max=10000"`
}

func (d Deps) sendMessage(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req sendMessageReq
	if !decodeValid(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		utils.JSONError(w, http.StatusBadRequest, "content required")
		return
	}
	convID := mux.Vars(r)["id"]
	m, err := d.Msg.Send(convID, callerID, req.Content)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	metrics.MessagesSent.Inc()
	d.publishToOthers(convID, callerID, "message", m)
	utils.JSONWrite(w, http.StatusCreated, m)
}

func (d Deps) listMessages(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	msgs, err := d.Msg.List(mux.Vars(r)["id"], callerID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (d Deps) deleteMessage(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	msgID := mux.Vars(r)["id"]
	if err := d.Msg.DeleteForEveryone(msgID, callerID); err != nil {
		writeFault(w, r, err)
		return
	}
	if m, err := d.Msg.Get(msgID); err == nil {
		d.publishToOthers(m.ConversationID, callerID, "delete", map[string]string{"message_id": msgID})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Deps) hideMessage(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := d.Msg.HideForViewer(mux.Vars(r)["id"], callerID); err != nil {
		writeFault(w, r, err)
		return
	}
	// hide is viewer-local; nobody else needs an event
	w.WriteHeader(http.StatusNoContent)
}

type reactionReq struct {
	Emoji string `json:"emoji" validate:"required,max=64"`
}

func (d Deps) toggleReaction(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req reactionReq
	if !decodeValid(w, r, &req) {
		return
	}
	msgID := mux.Vars(r)["id"]
	if err := d.Msg.ToggleReaction(msgID, callerID, req.Emoji); err != nil {
		writeFault(w, r, err)
		return
	}
	m, err := d.Msg.Get(msgID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	d.publishToOthers(m.ConversationID, callerID, "reaction", m)
	utils.JSONWrite(w, http.StatusOK, m)
}
