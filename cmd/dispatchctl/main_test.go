package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/result"
)

const mainTestPrefix = "cmd/dispatchctl:main_test"

// localEnv clears variables that would pull in external services.
func localEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "ENCRYPTION_KEY", "DECLARATIONS_FILE", "NAMING"} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func decodeResult(t *testing.T, b []byte) result.Result {
	t.Helper()
	var res result.Result
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("%s - output is not a result: %v\n%s", mainTestPrefix, err, b)
	}
	return res
}

func TestUsage(t *testing.T) {
	for _, word := range []string{"call", "file", "list", "openapi", "--remote"} {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
	var out bytes.Buffer
	if err := run(context.Background(), nil, nil, &out); err != nil || out.String() != usage {
		t.Errorf("%s - no args should print usage, err=%v", mainTestPrefix, err)
	}
}

func TestRemoteFlag(t *testing.T) {
	remote, rest := remoteFlag([]string{"--remote", "sys.health.ping"})
	if !remote || len(rest) != 1 {
		t.Errorf("%s - remoteFlag = %v %v", mainTestPrefix, remote, rest)
	}
	remote, rest = remoteFlag([]string{"sys.health.ping", "--remote"})
	if remote || len(rest) != 2 {
		t.Errorf("%s - trailing flag should not count: %v %v", mainTestPrefix, remote, rest)
	}
}

func TestRun_Call(t *testing.T) {
	localEnv(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := run(ctx, []string{"call", "sys.health.ping"}, nil, &out); err != nil {
		t.Fatalf("%s - call failed: %v", mainTestPrefix, err)
	}
	if res := decodeResult(t, out.Bytes()); !res.Success || res.Value != "pong" {
		t.Errorf("%s - ping = %+v", mainTestPrefix, res)
	}

	out.Reset()
	err := run(ctx, []string{"call", "app.users.rolesAny", "code=1", "tag=abc"}, nil, &out)
	if !errors.Is(err, errFailed) {
		t.Fatalf("%s - anonymous rolesAny err = %v, want errFailed", mainTestPrefix, err)
	}
	if res := decodeResult(t, out.Bytes()); res.Code != 401 {
		t.Errorf("%s - anonymous rolesAny = %+v", mainTestPrefix, res)
	}
}

func TestRun_File(t *testing.T) {
	localEnv(t)
	path := filepath.Join(t.TempDir(), "ping.json")
	if err := os.WriteFile(path, []byte(`{"version":"1.0","path":"sys.health.ping","tag":"f-1"}`), 0o600); err != nil {
		t.Fatalf("%s - write envelope: %v", mainTestPrefix, err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"file", path}, nil, &out); err != nil {
		t.Fatalf("%s - file failed: %v", mainTestPrefix, err)
	}
	if res := decodeResult(t, out.Bytes()); !res.Success || res.Tag != "f-1" {
		t.Errorf("%s - file result = %+v", mainTestPrefix, res)
	}

	out.Reset()
	stdin := strings.NewReader(`{"path":"sys.health.ping","tag":"f-2"}`)
	if err := run(context.Background(), []string{"file", "-"}, stdin, &out); err != nil {
		t.Fatalf("%s - stdin file failed: %v", mainTestPrefix, err)
	}
	if res := decodeResult(t, out.Bytes()); res.Tag != "f-2" {
		t.Errorf("%s - stdin result = %+v", mainTestPrefix, res)
	}

	if err := run(context.Background(), []string{"file", filepath.Join(t.TempDir(), "missing.json")}, nil, &out); err == nil {
		t.Errorf("%s - expected error for missing file", mainTestPrefix)
	}
}

func TestRun_ListAndOpenAPI(t *testing.T) {
	localEnv(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := run(ctx, []string{"list"}, nil, &out); err != nil {
		t.Fatalf("%s - list failed: %v", mainTestPrefix, err)
	}
	var infos []registry.ActionInfo
	if err := json.Unmarshal(out.Bytes(), &infos); err != nil {
		t.Fatalf("%s - list output: %v", mainTestPrefix, err)
	}
	found := false
	for _, info := range infos {
		if info.Path == "sys.health.ping" {
			found = true
		}
	}
	if !found {
		t.Errorf("%s - sys.health.ping not listed in %d actions", mainTestPrefix, len(infos))
	}

	out.Reset()
	if err := run(ctx, []string{"openapi"}, nil, &out); err != nil {
		t.Fatalf("%s - openapi failed: %v", mainTestPrefix, err)
	}
	var doc struct {
		OpenAPI string         `json:"openapi"`
		Paths   map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("%s - openapi output: %v", mainTestPrefix, err)
	}
	if doc.OpenAPI == "" || doc.Paths["/api/sys/health/ping"] == nil {
		t.Errorf("%s - openapi doc missing ping: %+v", mainTestPrefix, doc)
	}
}

func TestRun_Errors(t *testing.T) {
	localEnv(t)
	ctx := context.Background()
	var out bytes.Buffer
	if err := run(ctx, []string{"call"}, nil, &out); err == nil {
		t.Errorf("%s - call without path should fail", mainTestPrefix)
	}
	if err := run(ctx, []string{"bogus"}, nil, &out); err == nil {
		t.Errorf("%s - unknown command should fail", mainTestPrefix)
	}
	t.Setenv("NATS_URL", "")
	if err := run(ctx, []string{"call", "--remote", "sys.health.ping"}, nil, &out); err == nil {
		t.Errorf("%s - remote without NATS_URL should fail", mainTestPrefix)
	}
}
