package models

// User is a directory entry synced from the external identity provider.
// ExternalID is immutable and globally unique; email and name follow the
// provider on every sync.
type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	// AvatarRef is an opaque blob reference; resolved to a URL on read.
	AvatarRef string `json:"avatar_ref,omitempty"`
	// LastSeen is the presence heartbeat (unix ms); zero means never seen.
	LastSeen int64 `json:"last_seen,omitempty"`
}

// RecentSearch records that searcher looked up searched; unique per pair,
// timestamp refreshed on repeat search.
type RecentSearch struct {
	SearcherID     string `json:"searcher_id"`
	SearchedUserID string `json:"searched_user_id"`
	Timestamp      int64  `json:"timestamp"`
}
