// Package webhook verifies and decodes identity-provider event
// deliveries (svix wire format).
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeaders  = errors.New("webhook: missing signature headers")
	ErrBadTimestamp    = errors.New("webhook: invalid or expired timestamp")
	ErrNoSignatureHit  = errors.New("webhook: no matching signature")
	ErrSecretMalformed = errors.New("webhook: malformed signing secret")
)

// Verify checks a svix-format delivery: headers svix-id, svix-timestamp
// and svix-signature, with the signature computed as HMAC-SHA256 over
// "<id>.<timestamp>.<body>" under the base64 payload of the whsec_
// secret. The signature header may carry several space-separated
// "v1,<base64>" candidates; any match passes.
func Verify(secret string, headers http.Header, body []byte, tolerance time.Duration, now time.Time) error {
	id := headers.Get("svix-id")
	tsRaw := headers.Get("svix-timestamp")
	sigHeader := headers.Get("svix-signature")
	if id == "" || tsRaw == "" || sigHeader == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, tsRaw)
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if tolerance > 0 && skew > int64(tolerance.Seconds()) {
		return ErrBadTimestamp
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, tsRaw)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(sigHeader) {
		version, sig, found := strings.Cut(candidate, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrNoSignatureHit
}

func decodeSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	if raw == "" {
		return nil, ErrSecretMalformed
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretMalformed, err)
	}
	return key, nil
}
