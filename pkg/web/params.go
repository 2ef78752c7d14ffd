package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/value"
)

var errBodyNotObject = errors.New("body must be a JSON object or array")

// requestData merges query parameters with the body. Body fields win over
// query fields with the same name. A JSON array body is positional data
// and ignores the query.
func requestData(r *http.Request, maxBody int64) (value.Value, error) {
	data := valuesToMapping(r.URL.Query())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return value.Null(), fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > maxBody {
		return value.Null(), fmt.Errorf("body exceeds %d bytes", maxBody)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return data, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return value.Null(), fmt.Errorf("invalid form body: %w", err)
		}
		return value.Merge(data, valuesToMapping(form)), nil
	}

	parsed, err := value.Parse(body)
	if err != nil {
		return value.Null(), err
	}
	switch parsed.Kind() {
	case value.KindMapping:
		return value.Merge(data, parsed), nil
	case value.KindSequence:
		return parsed, nil
	}
	return value.Null(), errBodyNotObject
}

// valuesToMapping turns repeated keys into sequences.
func valuesToMapping(vals url.Values) value.Value {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]value.Entry, 0, len(keys))
	for _, k := range keys {
		vs := vals[k]
		if len(vs) == 1 {
			entries = append(entries, value.Entry{Key: k, Value: value.String(vs[0])})
			continue
		}
		items := make([]value.Value, len(vs))
		for i, v := range vs {
			items[i] = value.String(v)
		}
		entries = append(entries, value.Entry{Key: k, Value: value.Sequence(items...)})
	}
	return value.Mapping(entries...)
}

// requestMeta maps credential headers onto request meta.
func requestMeta(r *http.Request) value.Value {
	meta := value.Mapping()
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		meta = meta.With(request.MetaAPIKey, value.String(key))
	}
	if authz := r.Header.Get("Authorization"); authz != "" {
		if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				meta = meta.With(request.MetaToken, value.String(token))
			}
		}
	}
	return meta
}
