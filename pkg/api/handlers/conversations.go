package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"parlor/pkg/auth"
	"parlor/pkg/live"
	"parlor/pkg/metrics"
	"parlor/pkg/utils"
)

// RegisterConversations mounts conversation lifecycle, listing, read
// cursors and typing heartbeats.
func RegisterConversations(r *mux.Router, d Deps) {
	r.HandleFunc("/conversations/direct", d.openDirect).Methods(http.MethodPost)
	r.HandleFunc("/conversations/group", d.createGroup).Methods(http.MethodPost)
	r.HandleFunc("/conversations", d.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", d.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/read", d.markRead).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/typing", d.typing).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/typing", d.typingUsers).Methods(http.MethodGet)
}

type openDirectReq struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

func (d Deps) openDirect(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req openDirectReq
	if !decodeValid(w, r, &req) {
		return
	}
	conv, created, err := d.Reg.GetOrCreateDirect(callerID, req.UserID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
		d.publish(conv.Participants, "conversation", conv.ID, conv)
	}
	utils.JSONWrite(w, code, conv)
}

type createGroupReq struct {
	Name    string   `json:"name" validate:"required,max=200"`
	Members []string `json:"members" validate:"required,min=1,dive,required,max=128"`
	// GroupImageRef must name a blob already uploaded via POST /blobs.
	GroupImageRef string `json:"group_image_ref" validate:"omitempty,startswith=blb_,max=128"`
}

func (d Deps) createGroup(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req createGroupReq
	if !decodeValid(w, r, &req) {
		return
	}
	if req.GroupImageRef != "" {
		if _, err := d.Blobs.Stat(req.GroupImageRef); err != nil {
			writeFault(w, r, err)
			return
		}
	}
	conv, err := d.Reg.CreateGroup(callerID, req.Name, req.Members, req.GroupImageRef)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	d.publish(conv.Participants, "conversation", conv.ID, conv)
	utils.JSONWrite(w, http.StatusCreated, conv)
}

func (d Deps) listConversations(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	summaries, err := d.Reg.ListForUser(callerID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (d Deps) getConversation(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	conv, err := d.Reg.GetForViewer(mux.Vars(r)["id"], callerID)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, conv)
}

func (d Deps) markRead(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	convID := mux.Vars(r)["id"]
	if err := d.Reg.MarkAsRead(convID, callerID); err != nil {
		writeFault(w, r, err)
		return
	}
	d.publishToOthers(convID, callerID, "read", map[string]string{"user_id": callerID})
	w.WriteHeader(http.StatusNoContent)
}

type typingReq struct {
	// Typing false clears the heartbeat early (e.g. input blurred).
	Typing *bool `json:"typing" validate:"required"`
}

func (d Deps) typing(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var req typingReq
	if !decodeValid(w, r, &req) {
		return
	}
	convID := mux.Vars(r)["id"]
	var err error
	if *req.Typing {
		err = d.Reg.UpdateTyping(convID, callerID)
	} else {
		err = d.Reg.ClearTyping(convID, callerID)
	}
	if err != nil {
		writeFault(w, r, err)
		return
	}
	d.publishToOthers(convID, callerID, "typing", map[string]any{"user_id": callerID, "typing": *req.Typing})
	w.WriteHeader(http.StatusNoContent)
}

func (d Deps) typingUsers(w http.ResponseWriter, r *http.Request) {
	callerID, status, msg := auth.ResolveCaller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	users, err := d.Reg.TypingUsers(mux.Vars(r)["id"], callerID, d.Cfg.Presence.TypingWindow.Std())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"typing": users})
}

// publish fans a live event out to the given users.
func (d Deps) publish(userIDs []string, kind, convID string, payload any) {
	if d.Pub == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	d.Pub.Publish(userIDs, live.Event{Kind: kind, ConversationID: convID, Payload: raw})
}

// publishToOthers notifies every participant except the actor.
func (d Deps) publishToOthers(convID, actorID, kind string, payload any) {
	conv, err := d.Reg.Get(convID)
	if err != nil {
		return
	}
	others := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != actorID {
			others = append(others, p)
		}
	}
	d.publish(others, kind, convID, payload)
}
