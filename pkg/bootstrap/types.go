// Package bootstrap loads action declarations: group defaults, the role
// hierarchy, development credentials and remote action groups.
package bootstrap

// GroupDeclaration declares the defaults for actions under area.name.
// Roles and Protocol use the spellings "none", "*" or a name.
type GroupDeclaration struct {
	Area        string `json:"area" yaml:"area" toml:"area"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Roles       string `json:"roles,omitempty" yaml:"roles,omitempty" toml:"roles,omitempty"`
	Protocol    string `json:"protocol,omitempty" yaml:"protocol,omitempty" toml:"protocol,omitempty"`
	AuthMode    string `json:"authMode,omitempty" yaml:"authMode,omitempty" toml:"authMode,omitempty"`
	Verb        string `json:"verb,omitempty" yaml:"verb,omitempty" toml:"verb,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// RemoteDeclaration declares actions served by another dispatcher.
type RemoteDeclaration struct {
	Alias   string   `json:"alias" yaml:"alias" toml:"alias"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Subject string   `json:"subject,omitempty" yaml:"subject,omitempty" toml:"subject,omitempty"`
	Area    string   `json:"area" yaml:"area" toml:"area"`
	Name    string   `json:"name" yaml:"name" toml:"name"`
	Actions []string `json:"actions" yaml:"actions" toml:"actions"`
	// Timeout is a Go duration string such as "5s".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// Declarations is the root of a declarations file.
type Declarations struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Version     string `json:"version" yaml:"version" toml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	// Naming selects the action-name transform: lower, lower-hyphen or lower-underscore.
	Naming string             `json:"naming,omitempty" yaml:"naming,omitempty" toml:"naming,omitempty"`
	Groups []GroupDeclaration `json:"groups" yaml:"groups" toml:"groups"`
	// Roles maps a role to the roles it includes.
	Roles map[string][]string `json:"roles,omitempty" yaml:"roles,omitempty" toml:"roles,omitempty"`
	// APIKeys and Tokens are development credentials mapped to roles.
	APIKeys map[string][]string `json:"apiKeys,omitempty" yaml:"apiKeys,omitempty" toml:"apiKeys,omitempty"`
	Tokens  map[string][]string `json:"tokens,omitempty" yaml:"tokens,omitempty" toml:"tokens,omitempty"`
	Remotes []RemoteDeclaration `json:"remotes,omitempty" yaml:"remotes,omitempty" toml:"remotes,omitempty"`
}
