package registry

import "github.com/morezero/action-dispatcher/pkg/action"

// ParamInfo describes one parameter in a listing.
type ParamInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// ActionInfo is the public description of a registered action.
type ActionInfo struct {
	Path        string      `json:"path"`
	Roles       string      `json:"roles"`
	Protocol    string      `json:"protocol"`
	AuthMode    string      `json:"authMode"`
	Verb        string      `json:"verb,omitempty"`
	Description string      `json:"description,omitempty"`
	Params      []ParamInfo `json:"params"`
}

// Describe renders resolved metadata for listings.
func Describe(meta action.Metadata) ActionInfo {
	info := ActionInfo{
		Path:        meta.Path(),
		Roles:       meta.Roles.String(),
		Protocol:    meta.Protocol.String(),
		AuthMode:    string(meta.AuthMode),
		Verb:        meta.Verb,
		Description: meta.Description,
		Params:      make([]ParamInfo, 0, len(meta.Params)),
	}
	for _, p := range meta.Params {
		pi := ParamInfo{Name: p.Name, Type: p.Type.String(), Required: p.Required}
		if p.Default != nil {
			pi.Default = p.Default.Text()
		}
		info.Params = append(info.Params, pi)
	}
	return info
}

// List describes every registered action, sorted by path.
func (r *Registry) List() []ActionInfo {
	entries := r.Entries()
	out := make([]ActionInfo, len(entries))
	for i, e := range entries {
		out[i] = Describe(e.Metadata)
	}
	return out
}

// ListVisible describes the actions reachable over protocol.
func (r *Registry) ListVisible(protocol string) []ActionInfo {
	var out []ActionInfo
	for _, e := range r.Entries() {
		p := e.Metadata.Protocol
		if p.Kind == action.ProtocolSpecific && p.Name != protocol {
			continue
		}
		out = append(out, Describe(e.Metadata))
	}
	return out
}
