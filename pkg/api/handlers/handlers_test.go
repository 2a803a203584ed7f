package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"parlor/pkg/blob"
	"parlor/pkg/config"
	"parlor/pkg/directory"
	"parlor/pkg/faults"
	"parlor/pkg/live"
	"parlor/pkg/messages"
	"parlor/pkg/registry"
	"parlor/pkg/store"
)

const testWebhookSecret = "whsec_dGVzdC1zaWduaW5nLWtleQ=="

func testDeps(t *testing.T) (Deps, *mux.Router) {
	t.Helper()
	st := store.NewMemory()
	dir := directory.New(st, false)
	reg := registry.New(st, dir, 10)
	svc := messages.New(st, reg)
	blobs, err := blob.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Security.Webhook.Secret = testWebhookSecret
	cfg.Security.Webhook.Tolerance = config.Duration(5 * time.Minute)
	config.SetRuntime(&config.RuntimeConfig{WebhookSecret: testWebhookSecret})
	cfg.Presence.OnlineThreshold = config.Duration(60 * time.Second)
	cfg.Presence.TypingWindow = config.Duration(3 * time.Second)
	cfg.Conversations.PreviewScan = 10

	d := Deps{Dir: dir, Reg: reg, Msg: svc, Blobs: blobs, Pub: live.NopPublisher{}, Cfg: cfg}
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	RegisterUsers(v1, d)
	RegisterConversations(v1, d)
	RegisterMessages(v1, d)
	RegisterBlobs(v1, d)
	return d, r
}

// asBackend stamps the headers the gateway would set for a trusted
// backend asserting a user.
func asBackend(req *http.Request, userID string) *http.Request {
	req.Header.Set("X-Role-Name", "backend")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func doJSON(t *testing.T, r http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := asBackend(httptest.NewRequest(method, path, &buf), userID)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func webhookDelivery(t *testing.T, r http.Handler, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/users/sync", bytes.NewReader(body))
	if sign {
		key, err := base64.StdEncoding.DecodeString(testWebhookSecret[len("whsec_"):])
		require.NoError(t, err)
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, key)
		fmt.Fprintf(mac, "%s.%s.", "msg_1", ts)
		mac.Write(body)
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", ts)
		req.Header.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func syncUserFixture(t *testing.T, d Deps, r http.Handler, ext, name string) string {
	t.Helper()
	body := []byte(`{"type":"user.created","data":{"id":"` + ext + `","first_name":"` + name + `",
		"email_addresses":[{"id":"em","email_address":"` + ext + `@example.com"}],
		"primary_email_address_id":"em"}}`)
	rr := webhookDelivery(t, r, body, true)
	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out["user_id"])
	return out["user_id"]
}

func TestWebhookSyncLifecycle(t *testing.T) {
	d, r := testDeps(t)

	id := syncUserFixture(t, d, r, "ext_1", "Ada")

	// redelivery keeps the same user
	again := syncUserFixture(t, d, r, "ext_1", "Ada")
	require.Equal(t, id, again)

	// unsigned deliveries are a permanent 400
	rr := webhookDelivery(t, r, []byte(`{"type":"user.created","data":{"id":"x"}}`), false)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// unknown event types are acknowledged
	rr = webhookDelivery(t, r, []byte(`{"type":"session.created","data":{}}`), true)
	require.Equal(t, http.StatusOK, rr.Code)

	// the provider identity resolves back to the internal record
	rr = doJSON(t, r, http.MethodGet, "/v1/users/external/ext_1", id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var u struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	require.Equal(t, id, u.ID)

	rr = doJSON(t, r, http.MethodGet, "/v1/users/external/ext_missing", id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDirectAndMessageFlow(t *testing.T) {
	d, r := testDeps(t)
	ada := syncUserFixture(t, d, r, "ext_1", "Ada")
	bo := syncUserFixture(t, d, r, "ext_2", "Bo")

	// open a direct chat
	rr := doJSON(t, r, http.MethodPost, "/v1/conversations/direct", ada, map[string]string{"user_id": bo})
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conv))

	// reopening returns the same conversation with 200
	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/direct", bo, map[string]string{"user_id": ada})
	require.Equal(t, http.StatusOK, rr.Code)

	// empty content is rejected before touching the engine
	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", ada, map[string]string{"content": "   "})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", ada, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var msg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))

	// bo lists and sees one unread
	rr = doJSON(t, r, http.MethodGet, "/v1/conversations", bo, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listing struct {
		Conversations []struct {
			ID          string `json:"id"`
			UnreadCount int    `json:"unread_count"`
		} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Len(t, listing.Conversations, 1)
	require.Equal(t, 1, listing.Conversations[0].UnreadCount)

	// outsiders get 403 on the log
	cy := syncUserFixture(t, d, r, "ext_3", "Cy")
	rr = doJSON(t, r, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", cy, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// reaction toggle round trip
	rr = doJSON(t, r, http.MethodPost, "/v1/messages/"+msg.ID+"/reactions", bo, map[string]string{"emoji": "👍"})
	require.Equal(t, http.StatusOK, rr.Code)

	// only the sender deletes
	rr = doJSON(t, r, http.MethodDelete, "/v1/messages/"+msg.ID, bo, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = doJSON(t, r, http.MethodDelete, "/v1/messages/"+msg.ID, ada, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestTypingEndpoints(t *testing.T) {
	d, r := testDeps(t)
	ada := syncUserFixture(t, d, r, "ext_1", "Ada")
	bo := syncUserFixture(t, d, r, "ext_2", "Bo")

	rr := doJSON(t, r, http.MethodPost, "/v1/conversations/direct", ada, map[string]string{"user_id": bo})
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conv))

	typing := true
	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/"+conv.ID+"/typing", bo, map[string]any{"typing": typing})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/v1/conversations/"+conv.ID+"/typing", ada, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Typing []string `json:"typing"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, []string{bo}, out.Typing)
}

func TestSearchesEndpoints(t *testing.T) {
	d, r := testDeps(t)
	ada := syncUserFixture(t, d, r, "ext_1", "Ada")
	bo := syncUserFixture(t, d, r, "ext_2", "Bo")

	rr := doJSON(t, r, http.MethodPost, "/v1/searches", ada, map[string]string{"user_id": bo})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/v1/searches", ada, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Users, 1)
	require.Equal(t, bo, out.Users[0].ID)
}

func TestCreateGroupWithImage(t *testing.T) {
	d, r := testDeps(t)
	ada := syncUserFixture(t, d, r, "ext_1", "Ada")
	bo := syncUserFixture(t, d, r, "ext_2", "Bo")

	// upload the cover first, then reference it
	req := asBackend(httptest.NewRequest(http.MethodPost, "/v1/blobs", bytes.NewReader([]byte("cover"))), ada)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	var up struct {
		Ref string `json:"ref"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &up))

	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/group", ada, map[string]any{
		"name": "plans", "members": []string{bo}, "group_image_ref": up.Ref,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv struct {
		GroupImageRef string `json:"group_image_ref"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conv))
	require.Equal(t, up.Ref, conv.GroupImageRef)

	// references must point at an uploaded blob
	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/group", ada, map[string]any{
		"name": "plans", "members": []string{bo}, "group_image_ref": "blb_missing",
	})
	require.Equal(t, http.StatusNotFound, rr.Code)

	// and must look like one
	rr = doJSON(t, r, http.MethodPost, "/v1/conversations/group", ada, map[string]any{
		"name": "plans", "members": []string{bo}, "group_image_ref": "../../etc/passwd",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteFaultMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{faults.ErrNotFound, http.StatusNotFound},
		{faults.ErrUnauthorized, http.StatusForbidden},
		{faults.ErrConflict, http.StatusConflict},
		{faults.ErrInvalid, http.StatusBadRequest},
		{faults.ErrUpstream, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		writeFault(rr, httptest.NewRequest(http.MethodGet, "/v1/x", nil), c.err)
		require.Equal(t, c.code, rr.Code, c.err.Error())
	}
}

func TestBlobRoundTrip(t *testing.T) {
	d, r := testDeps(t)
	ada := syncUserFixture(t, d, r, "ext_1", "Ada")

	req := asBackend(httptest.NewRequest(http.MethodPost, "/v1/blobs", bytes.NewReader([]byte("png-bytes"))), ada)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	var out struct {
		Ref string `json:"ref"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))

	get := httptest.NewRequest(http.MethodGet, "/v1/blobs/"+out.Ref, nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "png-bytes", rr.Body.String())
}
