package db

import "time"

// APIKey represents a row in the api_keys table. Only the key's hash is
// stored; Key is set when the caller supplied it.
type APIKey struct {
	KeyHash     string    `json:"key_hash"`
	Key         string    `json:"-"`
	Roles       []string  `json:"roles"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// Migration is one forward migration file and its optional rollback.
type Migration struct {
	Name string
	Up   string
	Down string
}
