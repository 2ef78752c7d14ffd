// Package request is the transport-neutral representation of an inbound call.
package request

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/action-dispatcher/pkg/value"
)

// Meta keys that carry cross-cutting fields. They are never call arguments.
const (
	MetaAPIKey = "api-key"
	MetaToken  = "token"
)

// Source is the transport a request arrived through.
type Source int

const (
	SourceUnknown Source = iota
	SourceCLI
	SourceWeb
	SourceQueue
	SourceFile
)

// String returns the protocol name matched against an action's ProtocolSpec.
func (s Source) String() string {
	switch s {
	case SourceCLI:
		return "cli"
	case SourceWeb:
		return "web"
	case SourceQueue:
		return "queue"
	case SourceFile:
		return "file"
	}
	return "unknown"
}

// ParseSource reads a protocol name.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cli":
		return SourceCLI, nil
	case "web", "http":
		return SourceWeb, nil
	case "queue":
		return SourceQueue, nil
	case "file":
		return SourceFile, nil
	case "":
		return SourceUnknown, nil
	}
	return SourceUnknown, fmt.Errorf("unknown source %q", s)
}

// ErrInvalidPath is returned for paths that are not area.name.action.
var ErrInvalidPath = errors.New("request: path must be area.name.action")

// ParsePath splits a dotted path into exactly three non-empty segments.
func ParsePath(path string) ([3]string, error) {
	var parts [3]string
	segs := strings.Split(strings.TrimSpace(path), ".")
	if len(segs) != 3 {
		return parts, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for i, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			return parts, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		parts[i] = s
	}
	return parts, nil
}

// Request is immutable once built. Data holds call inputs by name (or by
// position when it is a sequence); Meta holds api-key, token and similar.
type Request struct {
	path      string
	parts     [3]string
	source    Source
	verb      string
	data      value.Value
	meta      value.Value
	tag       string
	timestamp time.Time
	version   string
}

// Params holds parameters for New.
type Params struct {
	Path      string
	Source    Source
	Verb      string
	Data      value.Value
	Meta      value.Value
	Tag       string
	Timestamp time.Time
	Version   string
}

// New validates the path and builds a request. A missing tag gets a random
// UUID and a missing timestamp the current UTC time.
func New(p Params) (*Request, error) {
	parts, err := ParsePath(p.Path)
	if err != nil {
		return nil, err
	}
	tag := p.Tag
	if tag == "" {
		tag = uuid.NewString()
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	data := p.Data
	if data.IsNull() {
		data = value.Mapping()
	}
	meta := p.Meta
	if meta.Kind() != value.KindMapping {
		meta = value.Mapping()
	}
	verb := strings.ToLower(strings.TrimSpace(p.Verb))
	if verb == "" {
		verb = defaultVerb(p.Source)
	}
	return &Request{
		path:      strings.Join(parts[:], "."),
		parts:     parts,
		source:    p.Source,
		verb:      verb,
		data:      data,
		meta:      meta,
		tag:       tag,
		timestamp: ts,
		version:   p.Version,
	}, nil
}

func defaultVerb(s Source) string {
	switch s {
	case SourceWeb:
		return "post"
	case SourceQueue:
		return "queue"
	case SourceCLI:
		return "cli"
	case SourceFile:
		return "file"
	}
	return ""
}

func (r *Request) Path() string         { return r.path }
func (r *Request) Area() string         { return r.parts[0] }
func (r *Request) Name() string         { return r.parts[1] }
func (r *Request) Action() string       { return r.parts[2] }
func (r *Request) Source() Source       { return r.source }
func (r *Request) Verb() string         { return r.verb }
func (r *Request) Data() value.Value    { return r.data }
func (r *Request) Meta() value.Value    { return r.meta }
func (r *Request) Tag() string          { return r.tag }
func (r *Request) Timestamp() time.Time { return r.timestamp }
func (r *Request) Version() string      { return r.version }

// Get returns the named input.
func (r *Request) Get(name string) (value.Value, bool) {
	return r.data.Get(name)
}

// At returns the positional input at i when data is a sequence.
func (r *Request) At(i int) (value.Value, bool) {
	return r.data.Index(i)
}

// IsPositional reports whether inputs are given by position.
func (r *Request) IsPositional() bool {
	return r.data.Kind() == value.KindSequence
}

// MetaString returns a meta field as text ("" when absent).
func (r *Request) MetaString(key string) string {
	v, ok := r.meta.Get(key)
	if !ok {
		return ""
	}
	return v.Text()
}

// APIKey returns meta["api-key"].
func (r *Request) APIKey() string { return r.MetaString(MetaAPIKey) }

// Token returns meta["token"].
func (r *Request) Token() string { return r.MetaString(MetaToken) }
