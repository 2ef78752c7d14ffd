package convert

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/value"
)

// dateLayouts are tried in order for non-numeric dates. Layouts without a
// zone are read in the deserializer's location.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// compactLayouts maps the length of a numeric yyyymmdd[hhmm[ss]] date to
// its layout.
var compactLayouts = map[int]string{
	8:  "20060102",
	12: "200601021504",
	14: "20060102150405",
}

func (d *Deserializer) scalar(kind action.Kind, raw value.Value, path string) (any, error) {
	switch raw.Kind() {
	case value.KindSequence, value.KindMapping:
		return nil, convErr(path, "expected %s, got %s", kind, raw.Kind())
	case value.KindBool:
		if kind != action.KindBool {
			return nil, convErr(path, "expected %s, got bool", kind)
		}
		return raw.Bool(), nil
	}
	text := strings.TrimSpace(raw.Text())

	switch kind {
	case action.KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to bool", text)
		}
		return b, nil
	case action.KindShort:
		n, err := parseInteger(text, 16)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to short", text)
		}
		return int16(n), nil
	case action.KindInt:
		n, err := parseInteger(text, 32)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to int", text)
		}
		return int(n), nil
	case action.KindLong:
		n, err := parseInteger(text, 64)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to long", text)
		}
		return n, nil
	case action.KindFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to float", text)
		}
		return float32(f), nil
	case action.KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to double", text)
		}
		return f, nil
	case action.KindDate:
		t, err := d.parseDate(text)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to date", text)
		}
		return t, nil
	case action.KindUUID:
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, convErr(path, "cannot convert %q to uuid", text)
		}
		return id, nil
	}
	return nil, convErr(path, "unsupported type %s", kind)
}

// parseInteger accepts integer text, or float text with an integral value
// ("12.0") as JSON clients sometimes send.
func parseInteger(text string, bits int) (int64, error) {
	n, err := strconv.ParseInt(text, 10, bits)
	if err == nil {
		return n, nil
	}
	f, ferr := strconv.ParseFloat(text, 64)
	if ferr != nil || f != math.Trunc(f) {
		return 0, err
	}
	lim := math.Ldexp(1, bits-1)
	if f < -lim || f >= lim {
		return 0, err
	}
	return int64(f), nil
}

func (d *Deserializer) parseDate(text string) (time.Time, error) {
	if layout, ok := compactLayouts[len(text)]; ok && isDigits(text) {
		return time.ParseInLocation(layout, text, d.location)
	}
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, text, d.location)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// zeroOf is the value of an optional parameter the payload omitted.
func zeroOf(t action.Type) any {
	switch t.Kind {
	case action.KindBool:
		return false
	case action.KindShort:
		return int16(0)
	case action.KindInt:
		return 0
	case action.KindLong:
		return int64(0)
	case action.KindFloat:
		return float32(0)
	case action.KindDouble:
		return float64(0)
	case action.KindString:
		return ""
	case action.KindDate:
		return time.Time{}
	case action.KindUUID:
		return uuid.Nil
	case action.KindEncrypted:
		return zeroOf(*t.Elem)
	case action.KindList:
		return buildList(*t.Elem, nil)
	case action.KindMap:
		return buildMap(*t.Key, *t.Elem, nil, nil)
	}
	return nil
}
