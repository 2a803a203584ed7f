package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"parlor/pkg/config"
	"parlor/pkg/logger"
	"parlor/pkg/utils"
)

type ctxUserKey struct{}

// RequireSignedUser verifies the X-User-ID / X-User-Signature header
// pair and injects the verified user id into the request context.
// Backend and admin callers may omit the signature and assert the user
// directly; frontend callers always need one.
func RequireSignedUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role-Name")
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))

		if (role == "backend" || role == "admin") && sig == "" {
			next.ServeHTTP(w, r)
			return
		}

		if sig == "" || userID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		if !VerifyUserSignature(userID, sig, keys) {
			logger.Warn("invalid_signature", "user", userID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// VerifyUserSignature checks sig against HMAC-SHA256 of userID under
// any of the configured secrets.
func VerifyUserSignature(userID, sig string, keys map[string]struct{}) bool {
	for k := range keys {
		mac := hmac.New(sha256.New, []byte(k))
		mac.Write([]byte(userID))
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// SignUserID produces the signature a trusted backend hands to its
// frontend for a user.
func SignUserID(userID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// UserIDFromContext returns the signature-verified user id, or empty.
func UserIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxUserKey{}).(string); ok {
		return s
	}
	return ""
}

// ResolveCaller is the canonical caller resolver for handlers. A
// verified signature is authoritative and any conflicting id from the
// header is rejected. Without a signature, backend/admin roles may
// assert the caller via X-User-ID. Returns (userID, 0, "") on success
// or an HTTP status plus message.
func ResolveCaller(r *http.Request) (string, int, string) {
	if id := UserIDFromContext(r.Context()); id != "" {
		if h := strings.TrimSpace(r.Header.Get("X-User-ID")); h != "" && h != id {
			logger.Warn("caller_mismatch", "signature", id, "header", h, "path", r.URL.Path)
			return "", http.StatusForbidden, "user id conflicts with signature"
		}
		return id, 0, ""
	}

	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if h := strings.TrimSpace(r.Header.Get("X-User-ID")); h != "" {
			if len(h) > 128 {
				return "", http.StatusBadRequest, "user id too long"
			}
			return h, 0, ""
		}
		return "", http.StatusBadRequest, "user id required for backend requests"
	}

	logger.Warn("missing_user_signature", "role", role, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid user signature"
}
