package request

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/morezero/action-dispatcher/pkg/semver"
	"github.com/morezero/action-dispatcher/pkg/value"
)

// ErrInvalidEnvelope is returned for payloads that are not a JSON envelope.
var ErrInvalidEnvelope = errors.New("request: invalid envelope")

// ErrUnsupportedVersion is returned when the envelope version is outside the
// accepted range.
var ErrUnsupportedVersion = errors.New("request: unsupported envelope version")

// Envelope is the JSON wire shape consumed from Web, Queue and File sources.
type Envelope struct {
	Version   string      `json:"version"`
	Path      string      `json:"path"`
	Source    string      `json:"source,omitempty"`
	Verb      string      `json:"verb,omitempty"`
	Tag       string      `json:"tag,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Meta      value.Value `json:"meta"`
	Data      value.Value `json:"data"`
}

// Decoder turns envelope bytes into requests.
type Decoder struct {
	compat *semver.Compatibility
}

// NewDecoder returns a decoder accepting envelope versions in versionRange
// (semver.DefaultRange when empty).
func NewDecoder(versionRange string) (*Decoder, error) {
	c, err := semver.NewCompatibility(versionRange)
	if err != nil {
		return nil, err
	}
	return &Decoder{compat: c}, nil
}

// Decode parses an envelope. The transport's source wins over the
// envelope's "source" field; the field is only honored when transport is
// SourceUnknown, so a caller cannot claim a protocol it did not use.
func (d *Decoder) Decode(data []byte, transport Source) (*Request, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidEnvelope)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrInvalidEnvelope)
	}

	version := root.Get("version").String()
	if err := d.compat.Check(version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}

	src := transport
	if declared := root.Get("source"); declared.Exists() {
		parsed, err := ParseSource(declared.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		if src == SourceUnknown {
			src = parsed
		}
	}

	var ts time.Time
	if raw := strings.TrimSpace(root.Get("timestamp").String()); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidEnvelope, err)
		}
		ts = parsed
	}

	meta := value.FromResult(root.Get("meta"))
	if !meta.IsNull() && meta.Kind() != value.KindMapping {
		return nil, fmt.Errorf("%w: meta must be an object", ErrInvalidEnvelope)
	}
	payload := value.FromResult(root.Get("data"))
	switch payload.Kind() {
	case value.KindNull, value.KindMapping, value.KindSequence:
	default:
		return nil, fmt.Errorf("%w: data must be an object or array", ErrInvalidEnvelope)
	}

	return New(Params{
		Path:      root.Get("path").String(),
		Source:    src,
		Verb:      root.Get("verb").String(),
		Data:      payload,
		Meta:      meta,
		Tag:       root.Get("tag").String(),
		Timestamp: ts,
		Version:   version,
	})
}

// ToEnvelope renders a request back into its wire shape.
func ToEnvelope(r *Request) Envelope {
	version := r.Version()
	if version == "" {
		version = semver.DefaultVersion
	}
	return Envelope{
		Version:   version,
		Path:      r.Path(),
		Source:    r.Source().String(),
		Verb:      r.Verb(),
		Tag:       r.Tag(),
		Timestamp: r.Timestamp().Format(time.RFC3339Nano),
		Meta:      r.Meta(),
		Data:      r.Data(),
	}
}
