package request

import (
	"fmt"
	"strings"

	"github.com/morezero/action-dispatcher/pkg/value"
)

// MetaKeys lists argv keys routed to meta instead of data.
var MetaKeys = map[string]bool{
	MetaAPIKey: true,
	MetaToken:  true,
}

// FromArgs builds a request from tokenized command-line arguments:
// the path followed by key=value pairs. Keys in MetaKeys go to meta. A
// repeated key collects its values into a sequence.
func FromArgs(args []string, source Source) (*Request, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no path given", ErrInvalidPath)
	}
	var meta []value.Entry
	var order []string
	collected := make(map[string][]value.Value)
	for _, arg := range args[1:] {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("request: argument %q is not key=value", arg)
		}
		if MetaKeys[key] {
			meta = append(meta, value.Entry{Key: key, Value: value.String(val)})
			continue
		}
		if _, seen := collected[key]; !seen {
			order = append(order, key)
		}
		collected[key] = append(collected[key], value.String(val))
	}

	data := make([]value.Entry, 0, len(order))
	for _, key := range order {
		vals := collected[key]
		if len(vals) == 1 {
			data = append(data, value.Entry{Key: key, Value: vals[0]})
			continue
		}
		data = append(data, value.Entry{Key: key, Value: value.Sequence(vals...)})
	}
	return New(Params{Path: args[0], Source: source, Data: value.Mapping(data...), Meta: value.Mapping(meta...)})
}
