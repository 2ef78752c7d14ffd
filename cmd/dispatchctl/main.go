// Package main is dispatchctl, a command-line source for the dispatcher.
// Actions run in-process by default, or against a running dispatcher over
// NATS with --remote.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/morezero/action-dispatcher/internal/config"
	"github.com/morezero/action-dispatcher/internal/server"
	"github.com/morezero/action-dispatcher/pkg/commsutil"
	"github.com/morezero/action-dispatcher/pkg/queue"
	"github.com/morezero/action-dispatcher/pkg/request"
	"github.com/morezero/action-dispatcher/pkg/result"
	"github.com/morezero/action-dispatcher/pkg/web"
)

const usage = `Usage: dispatchctl [command]
       dispatchctl call [--remote] <area.name.action> [key=value ...]
       dispatchctl file [--remote] <envelope.json>
       dispatchctl list [protocol]
       dispatchctl openapi

Commands:
  call     Dispatch one action. token=... and apiKey=... are sent as meta.
  file     Dispatch a JSON envelope read from a file ("-" reads stdin).
  list     Print registered actions, optionally only those visible to a protocol.
  openapi  Print the OpenAPI document for web-visible actions.

--remote sends the request to NATS_URL on DISPATCH_SUBJECT instead of
building the dispatcher in-process.
A .env file in the working directory is loaded first when present.
`

// errFailed marks a dispatch that returned an unsuccessful result. The
// result itself has already been printed.
var errFailed = errors.New("dispatch failed")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("dispatchctl: load .env: %v", err)
	}
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		log.Fatalf("dispatchctl: %v", err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: server.ParseLogLevel(cfg.LogLevel)})))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "call":
		remote, rest := remoteFlag(rest)
		if len(rest) == 0 {
			return fmt.Errorf("call: require an action path")
		}
		if remote {
			req, err := request.FromArgs(rest, request.SourceCLI)
			if err != nil {
				return writeResult(out, result.BadRequest(err.Error()).ToResult(""))
			}
			return callRemote(ctx, cfg, out, func(c *queue.Client) (*result.Result, error) {
				return c.Call(ctx, req)
			})
		}
		s, err := newLocal(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)
		return writeResult(out, s.Dispatcher().DispatchArgs(ctx, rest, request.SourceCLI))
	case "file":
		remote, rest := remoteFlag(rest)
		if len(rest) != 1 {
			return fmt.Errorf("file: require exactly one envelope file")
		}
		data, err := readEnvelope(rest[0], stdin)
		if err != nil {
			return err
		}
		if remote {
			return callRemote(ctx, cfg, out, func(c *queue.Client) (*result.Result, error) {
				return c.CallEnvelope(ctx, data)
			})
		}
		dec, err := request.NewDecoder(cfg.EnvelopeVersion)
		if err != nil {
			return fmt.Errorf("envelope version: %w", err)
		}
		s, err := newLocal(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)
		return writeResult(out, s.Dispatcher().DispatchEnvelope(ctx, dec, data, request.SourceFile))
	case "list":
		s, err := newLocal(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)
		infos := s.Registry().List()
		if len(rest) > 0 {
			infos = s.Registry().ListVisible(rest[0])
		}
		return writeJSON(out, infos)
	case "openapi":
		s, err := newLocal(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)
		name, version := s.Info()
		doc, err := web.MarshalOpenAPI(name, version, s.Registry().ListVisible(request.SourceWeb.String()))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", doc)
		return err
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// remoteFlag strips a leading --remote from args.
func remoteFlag(args []string) (bool, []string) {
	if len(args) > 0 && (args[0] == "--remote" || args[0] == "-r") {
		return true, args[1:]
	}
	return false, args
}

func readEnvelope(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	return data, nil
}

// newLocal assembles the dispatcher without the queue or HTTP sources.
func newLocal(ctx context.Context, cfg *config.Config) (*server.Server, error) {
	local := *cfg
	local.COMMSURL = ""
	if err := local.ValidateForServe(); err != nil {
		return nil, err
	}
	return server.New(ctx, &local)
}

func callRemote(ctx context.Context, cfg *config.Config, out io.Writer, call func(*queue.Client) (*result.Result, error)) error {
	if cfg.COMMSURL == "" {
		return fmt.Errorf("--remote requires NATS_URL")
	}
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-ctl")
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer nc.Close()

	client := queue.NewClient(queue.NewClientParams{Conn: nc, Subject: cfg.DispatchSubject, Timeout: cfg.RequestTimeout})
	res, err := call(client)
	if err != nil {
		return err
	}
	return writeResult(out, res)
}

func writeResult(out io.Writer, res *result.Result) error {
	if err := writeJSON(out, res); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
