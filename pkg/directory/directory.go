// Package directory maintains the user records synced from the external
// identity provider, presence heartbeats and recent searches.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"parlor/pkg/faults"
	"parlor/pkg/logger"
	"parlor/pkg/models"
	"parlor/pkg/store"
	"parlor/pkg/utils"
)

const recentSearchCap = 10

// Directory resolves external identities to internal user records.
type Directory struct {
	st store.Store
	// uniqueEmailName rejects syncs whose email or name belongs to a
	// different user. Policy switch, not a core contract.
	uniqueEmailName bool
	now             func() time.Time
}

func New(st store.Store, uniqueEmailName bool) *Directory {
	return &Directory{st: st, uniqueEmailName: uniqueEmailName, now: time.Now}
}

// UpsertUser creates or refreshes the record for externalID. Repeat
// deliveries are safe: the externalID row wins and email/name/avatar
// follow the provider.
func (d *Directory) UpsertUser(externalID, email, name, avatarRef string) (string, error) {
	if externalID == "" {
		return "", fmt.Errorf("external id required: %w", faults.ErrInvalid)
	}

	if id, err := d.externalToID(externalID); err == nil {
		return id, d.refresh(id, email, name, avatarRef)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if d.uniqueEmailName {
		if err := d.claimUnique(email, name, ""); err != nil {
			return "", err
		}
	}

	id := utils.GenUserID()
	// The external-id index is the admission point: concurrent first
	// deliveries race here and exactly one insert wins.
	if err := d.st.Insert(store.UserExternalKey(externalID), []byte(id)); err != nil {
		if errors.Is(err, store.ErrConflict) {
			winner, gerr := d.externalToID(externalID)
			if gerr != nil {
				return "", gerr
			}
			return winner, d.refresh(winner, email, name, avatarRef)
		}
		return "", err
	}

	u := models.User{ID: id, ExternalID: externalID, Email: email, Name: name, AvatarRef: avatarRef}
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	if err := d.st.Put(store.UserKey(id), b); err != nil {
		return "", err
	}
	if d.uniqueEmailName {
		if err := d.writeUniqueRows(email, name, id); err != nil {
			return "", err
		}
	}
	logger.Info("user_created", "user", id, "external", externalID)
	return id, nil
}

// refresh updates email/name/avatar on an existing record, enforcing the
// uniqueness policy against other users when enabled.
func (d *Directory) refresh(id, email, name, avatarRef string) error {
	if d.uniqueEmailName {
		if err := d.claimUnique(email, name, id); err != nil {
			return err
		}
	}
	err := d.st.Update(store.UserKey(id), func(cur []byte) ([]byte, error) {
		var u models.User
		if err := json.Unmarshal(cur, &u); err != nil {
			return nil, err
		}
		if d.uniqueEmailName {
			if u.Email != "" && u.Email != email {
				_ = d.st.Delete(store.UserEmailKey(u.Email))
			}
			if u.Name != "" && u.Name != name {
				_ = d.st.Delete(store.UserNameKey(u.Name))
			}
		}
		u.Email = email
		u.Name = name
		u.AvatarRef = avatarRef
		return json.Marshal(u)
	})
	if err == nil {
		logger.Info("user_updated", "user", id)
	}
	return err
}

// claimUnique checks the email and name index rows against owner. A row
// held by a different user is a conflict. Empty values are exempt.
func (d *Directory) claimUnique(email, name, owner string) error {
	for _, key := range uniqueKeys(email, name) {
		cur, err := d.st.Get(key)
		switch {
		case err == nil:
			if owner == "" || string(cur) != owner {
				return fmt.Errorf("email or name already in use: %w", faults.ErrConflict)
			}
		case errors.Is(err, store.ErrNotFound):
			// free, claimed by writeUniqueRows
		default:
			return err
		}
	}
	if owner == "" {
		return nil // rows are written once the id is allocated
	}
	return d.writeUniqueRows(email, name, owner)
}

func (d *Directory) writeUniqueRows(email, name, owner string) error {
	for _, key := range uniqueKeys(email, name) {
		if err := d.st.Put(key, []byte(owner)); err != nil {
			return err
		}
	}
	return nil
}

func uniqueKeys(email, name string) []string {
	var keys []string
	if email != "" {
		keys = append(keys, store.UserEmailKey(email))
	}
	if name != "" {
		keys = append(keys, store.UserNameKey(name))
	}
	return keys
}

func (d *Directory) externalToID(externalID string) (string, error) {
	b, err := d.st.Get(store.UserExternalKey(externalID))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FindByExternalID returns the user for an external identity.
func (d *Directory) FindByExternalID(externalID string) (*models.User, error) {
	id, err := d.externalToID(externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("external id %s: %w", externalID, faults.ErrNotFound)
		}
		return nil, err
	}
	return d.Get(id)
}

// Get returns a user by internal id.
func (d *Directory) Get(id string) (*models.User, error) {
	b, err := d.st.Get(store.UserKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, faults.ErrNotFound)
		}
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all users, sorted by name for stable output.
func (d *Directory) List() ([]*models.User, error) {
	var out []*models.User
	err := d.st.Scan(store.UserPrefix, func(_ string, v []byte) error {
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		out = append(out, &u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdatePresence records a heartbeat for the user.
func (d *Directory) UpdatePresence(userID string) error {
	ts := d.now().UnixMilli()
	err := d.st.Update(store.UserKey(userID), func(cur []byte) ([]byte, error) {
		var u models.User
		if err := json.Unmarshal(cur, &u); err != nil {
			return nil, err
		}
		if ts > u.LastSeen {
			u.LastSeen = ts
		}
		return json.Marshal(u)
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %s: %w", userID, faults.ErrNotFound)
	}
	return err
}

// IsOnline reports whether the user heartbeat falls within threshold.
// The threshold is caller policy; the observed UI uses 60s.
func (d *Directory) IsOnline(u *models.User, threshold time.Duration) bool {
	if u == nil || u.LastSeen == 0 {
		return false
	}
	return d.now().UnixMilli()-u.LastSeen < threshold.Milliseconds()
}

// AddRecentSearch upserts the (searcher, searched) pair with a fresh
// timestamp.
func (d *Directory) AddRecentSearch(searcherID, searchedID string) error {
	if _, err := d.Get(searchedID); err != nil {
		return err
	}
	rs := models.RecentSearch{
		SearcherID:     searcherID,
		SearchedUserID: searchedID,
		Timestamp:      d.now().UnixMilli(),
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return d.st.Put(store.SearchKey(searcherID, searchedID), b)
}

// RecentSearches returns the searched users, newest first, capped for
// display.
func (d *Directory) RecentSearches(searcherID string) ([]*models.User, error) {
	var entries []models.RecentSearch
	err := d.st.Scan(store.SearchPrefix(searcherID), func(_ string, v []byte) error {
		var rs models.RecentSearch
		if err := json.Unmarshal(v, &rs); err != nil {
			return err
		}
		entries = append(entries, rs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })
	if len(entries) > recentSearchCap {
		entries = entries[:recentSearchCap]
	}
	out := make([]*models.User, 0, len(entries))
	for _, e := range entries {
		u, err := d.Get(e.SearchedUserID)
		if err != nil {
			if errors.Is(err, faults.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// SetClock overrides the time source; tests only.
func (d *Directory) SetClock(now func() time.Time) { d.now = now }
