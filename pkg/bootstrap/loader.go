package bootstrap

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// EnvDeclarationsFile names the environment variable holding a declarations path.
const EnvDeclarationsFile = "DECLARATIONS_FILE"

//go:embed declarations.default.yaml
var defaultDeclarations []byte

var defaultPaths = []string{
	"config/declarations.json",
	"config/declarations.yaml",
	"config/declarations.yml",
	"config/declarations.toml",
	"declarations.json",
}

// LoadDeclarations loads declarations from file paths or environment.
// It tries paths in order: first any paths passed in, then DECLARATIONS_FILE,
// then the defaults. Missing files are skipped; a file that exists but does
// not parse is an error. With no file found the embedded default is used.
func LoadDeclarations(paths ...string) (*Declarations, error) {
	all := make([]string, 0, len(paths)+len(defaultPaths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvDeclarationsFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, defaultPaths...)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn(fmt.Sprintf("%s - Cannot read declarations file %s: %v", logPrefix, p, err))
			}
			continue
		}
		decl, err := ParseDeclarations(data, formatOf(p))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, p, err)
		}
		slog.Info(fmt.Sprintf("%s - Loaded declarations from %s", logPrefix, p))
		return decl, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default declarations", logPrefix))
	return GetDefaultDeclarations(), nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	}
	return "json"
}

// ParseDeclarations decodes declarations in the given format: json, yaml or toml.
func ParseDeclarations(data []byte, format string) (*Declarations, error) {
	var d Declarations
	switch strings.ToLower(format) {
	case "json", "":
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, err
		}
	case "toml":
		if _, err := toml.Decode(string(data), &d); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported declarations format %q", format)
	}
	return &d, nil
}

// GetDefaultDeclarations returns the embedded fallback declarations.
func GetDefaultDeclarations() *Declarations {
	d, err := ParseDeclarations(defaultDeclarations, "yaml")
	if err != nil {
		panic(fmt.Sprintf("%s - embedded declarations are invalid: %v", logPrefix, err))
	}
	return d
}

// MergeDeclarations merges an override into a base. Groups and remotes
// with the same key are replaced; maps are merged key by key.
func MergeDeclarations(base, override *Declarations) *Declarations {
	merged := *base
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Naming != "" {
		merged.Naming = override.Naming
	}

	merged.Groups = append([]GroupDeclaration(nil), base.Groups...)
	for _, g := range override.Groups {
		replaced := false
		for i, cur := range merged.Groups {
			if groupKey(cur.Area, cur.Name) == groupKey(g.Area, g.Name) {
				merged.Groups[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Groups = append(merged.Groups, g)
		}
	}

	merged.Remotes = append([]RemoteDeclaration(nil), base.Remotes...)
	for _, r := range override.Remotes {
		replaced := false
		for i, cur := range merged.Remotes {
			if cur.Alias == r.Alias {
				merged.Remotes[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Remotes = append(merged.Remotes, r)
		}
	}

	merged.Roles = mergeRoles(base.Roles, override.Roles)
	merged.APIKeys = mergeRoles(base.APIKeys, override.APIKeys)
	merged.Tokens = mergeRoles(base.Tokens, override.Tokens)
	return &merged
}

func mergeRoles(base, override map[string][]string) map[string][]string {
	out := copyRoles(base)
	for k, v := range override {
		out[k] = append([]string(nil), v...)
	}
	return out
}
