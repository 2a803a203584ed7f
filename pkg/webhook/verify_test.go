package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLWtleQ==" // base64("test-signing-key")

func signedHeaders(t *testing.T, secret, id string, ts time.Time, body []byte) http.Header {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(secret[len("whsec_"):])
	require.NoError(t, err)
	tsRaw := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, tsRaw)
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", tsRaw)
	h.Set("svix-signature", "v1,"+sig)
	return h
}

func TestVerifyAccepts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"type":"user.created"}`)
	h := signedHeaders(t, testSecret, "msg_1", now, body)
	require.NoError(t, Verify(testSecret, h, body, 5*time.Minute, now))
}

func TestVerifyAcceptsAnyCandidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, "msg_1", now, body)
	h.Set("svix-signature", "v1,Zm9yZ2VkCg== "+h.Get("svix-signature")+" v2,other")
	require.NoError(t, Verify(testSecret, h, body, 5*time.Minute, now))
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, "msg_1", now, body)
	h.Del("svix-id")
	require.ErrorIs(t, Verify(testSecret, h, body, 5*time.Minute, now), ErrMissingHeaders)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := signedHeaders(t, testSecret, "msg_1", now, []byte(`{"a":1}`))
	err := Verify(testSecret, h, []byte(`{"a":2}`), 5*time.Minute, now)
	require.ErrorIs(t, err, ErrNoSignatureHit)
}

func TestVerifyRejectsSkewedTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, "msg_1", now.Add(-10*time.Minute), body)
	require.ErrorIs(t, Verify(testSecret, h, body, 5*time.Minute, now), ErrBadTimestamp)
}

func TestVerifyRejectsBadSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, "msg_1", now, body)
	require.ErrorIs(t, Verify("whsec_", h, body, 5*time.Minute, now), ErrSecretMalformed)
	require.ErrorIs(t, Verify("whsec_!!!", h, body, 5*time.Minute, now), ErrSecretMalformed)
}

func TestDecodeIdentityNameFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    Identity
	}{
		{
			name: "full name wins",
			payload: `{"id":"ext_1","first_name":"Ada","last_name":"Lovelace","username":"ada",
				"primary_email_address_id":"em_1",
				"email_addresses":[{"id":"em_1","email_address":"ada@example.com"}]}`,
			want: Identity{ExternalID: "ext_1", Email: "ada@example.com", Name: "Ada Lovelace"},
		},
		{
			name: "username fallback",
			payload: `{"id":"ext_2","username":"grace",
				"email_addresses":[{"id":"em_1","email_address":"grace@example.com"}]}`,
			want: Identity{ExternalID: "ext_2", Email: "grace@example.com", Name: "grace"},
		},
		{
			name: "email local part fallback",
			payload: `{"id":"ext_3",
				"email_addresses":[{"id":"em_1","email_address":"turing@example.com"}]}`,
			want: Identity{ExternalID: "ext_3", Email: "turing@example.com", Name: "turing"},
		},
		{
			name: "primary email selected among several",
			payload: `{"id":"ext_4","first_name":"A","primary_email_address_id":"em_2",
				"email_addresses":[{"id":"em_1","email_address":"old@example.com"},
				{"id":"em_2","email_address":"new@example.com"}]}`,
			want: Identity{ExternalID: "ext_4", Email: "new@example.com", Name: "A"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse([]byte(`{"type":"user.created","data":` + tc.payload + `}`))
			require.NoError(t, err)
			got, err := DecodeIdentity(ev.Data)
			require.NoError(t, err)
			require.Equal(t, tc.want.ExternalID, got.ExternalID)
			require.Equal(t, tc.want.Email, got.Email)
			require.Equal(t, tc.want.Name, got.Name)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)
	_, err = Parse([]byte(`{"data":{}}`))
	require.Error(t, err)
}
