package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is a decoded identity-provider delivery.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Identity is the provider user payload, flattened to what the
// directory stores.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
}

type providerUser struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Username       string `json:"username"`
	ImageURL       string `json:"image_url"`
	PrimaryEmailID string `json:"primary_email_address_id"`
	EmailAddresses []struct {
		ID      string `json:"id"`
		Address string `json:"email_address"`
	} `json:"email_addresses"`
}

// Parse decodes the delivery body into an Event.
func Parse(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("webhook: decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("webhook: event missing type")
	}
	return &ev, nil
}

// DecodeIdentity flattens a user.created/user.updated payload. The
// display name falls back from real name to username to the email
// local part, so a record always has something renderable.
func DecodeIdentity(data json.RawMessage) (*Identity, error) {
	var u providerUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("webhook: decode user payload: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("webhook: user payload missing id")
	}

	email := ""
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID {
			email = e.Address
			break
		}
	}
	if email == "" && len(u.EmailAddresses) > 0 {
		email = u.EmailAddresses[0].Address
	}

	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	if name == "" && email != "" {
		name, _, _ = strings.Cut(email, "@")
	}

	return &Identity{ExternalID: u.ID, Email: email, Name: name, AvatarURL: u.ImageURL}, nil
}
