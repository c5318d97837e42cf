// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for lockoverlay.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jeranaias/lockoverlay/internal/client"
	"github.com/jeranaias/lockoverlay/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdRun Command = iota
	CmdActivate
	CmdStop
	CmdDismiss
	CmdStatus
	CmdWatch
	CmdSettings
	CmdPIN
	CmdConfig
	CmdAudit
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdRun:      "run",
	CmdActivate: "activate",
	CmdStop:     "stop",
	CmdDismiss:  "dismiss",
	CmdStatus:   "status",
	CmdWatch:    "watch",
	CmdSettings: "settings",
	CmdPIN:      "pin",
	CmdConfig:   "config",
	CmdAudit:    "audit",
	CmdVersion:  "version",
	CmdHelp:     "help",
}

// String returns the canonical command name.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string // --config
	Socket     string // --socket, overrides control.socket
	Addr       string // --addr, overrides control.listen
	Token      string // --token, overrides control.token
	JSON       bool   // --json
	Quiet      bool   // -q, --quiet
	Verbose    bool   // -v, --verbose

	// Name is the command word as typed.
	Name string

	// Raw holds the arguments after the command word.
	Raw []string
}

// Streams are the standard streams a command reads and writes.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process's standard streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv without the program name. With no command it
// returns CmdRun.
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdRun, args
	}

	args.Name = remaining[0]
	args.Raw = remaining[1:]

	switch strings.ToLower(args.Name) {
	case "run", "daemon":
		return CmdRun, args
	case "activate", "start", "lock":
		return CmdActivate, args
	case "stop":
		return CmdStop, args
	case "dismiss", "unlock":
		return CmdDismiss, args
	case "status", "s":
		return CmdStatus, args
	case "watch":
		return CmdWatch, args
	case "settings":
		return CmdSettings, args
	case "pin":
		return CmdPIN, args
	case "config":
		return CmdConfig, args
	case "audit":
		return CmdAudit, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags extracts global flags wherever they appear and returns
// the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	value := func(i *int, arg, name string) (string, bool) {
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true
		}
		if arg == name && *i+1 < len(argv) {
			*i++
			return argv[*i], true
		}
		return "", false
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "--json":
			args.JSON = true
			continue
		case "-q", "--quiet":
			args.Quiet = true
			continue
		case "-v", "--verbose":
			args.Verbose = true
			continue
		}
		if v, ok := value(&i, arg, "--config"); ok {
			args.ConfigPath = v
			continue
		}
		if v, ok := value(&i, arg, "--socket"); ok {
			args.Socket = v
			continue
		}
		if v, ok := value(&i, arg, "--addr"); ok {
			args.Addr = v
			continue
		}
		if v, ok := value(&i, arg, "--token"); ok {
			args.Token = v
			continue
		}
		remaining = append(remaining, arg)
	}
	return remaining, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd and returns the process exit code.
func Run(ctx context.Context, cmd Command, args Args, s Streams) int {
	var err error
	switch cmd {
	case CmdRun:
		err = HandleRun(ctx, args, s)
	case CmdActivate:
		err = HandleActivate(ctx, args, s)
	case CmdStop:
		err = HandleStop(ctx, args, s)
	case CmdDismiss:
		err = HandleDismiss(ctx, args, s)
	case CmdStatus:
		err = HandleStatus(ctx, args, s)
	case CmdWatch:
		err = HandleWatch(ctx, args, s)
	case CmdSettings:
		err = HandleSettings(ctx, args, s)
	case CmdPIN:
		err = HandlePIN(ctx, args, s)
	case CmdConfig:
		err = HandleConfig(args, s)
	case CmdAudit:
		err = HandleAudit(args, s)
	case CmdVersion:
		err = HandleVersion(args, s)
	case CmdHelp:
		err = HandleHelp(s)
	default:
		msg := fmt.Sprintf("unknown command %q", args.Name)
		if suggestion := SuggestCommand(args.Name); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		err = &UsageError{Message: msg, Usage: "lockoverlay help"}
	}

	if err != nil {
		DisplayError(errStream(args, s), cmd.String(), err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// errStream is where errors go: stdout in JSON mode so the envelope stays
// machine readable, stderr otherwise.
func errStream(args Args, s Streams) io.Writer {
	if args.JSON {
		return s.Out
	}
	return s.Err
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if args.Socket != "" {
		cfg.Control.Socket = args.Socket
	}
	if args.Addr != "" {
		cfg.Control.Listen = args.Addr
	}
	if args.Token != "" {
		cfg.Control.Token = args.Token
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newClient returns a control API client for cfg.
func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Control.Socket, cfg.Control.Listen, client.WithToken(cfg.Control.Token))
}

// printJSON writes a success envelope.
func printJSON(w io.Writer, command string, data any) error {
	return NewJSONResponse(command, data).Write(w)
}

// say prints a human line unless quiet.
func say(args Args, w io.Writer, format string, a ...any) {
	if args.Quiet {
		return
	}
	fmt.Fprintf(w, format+"\n", a...)
}

// =============================================================================
// VERSION
// =============================================================================

// VersionData is the JSON form of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// HandleVersion prints build information.
func HandleVersion(args Args, s Streams) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if args.JSON {
		return printJSON(s.Out, "version", data)
	}
	fmt.Fprintf(s.Out, "lockoverlay %s\n", data.Version)
	fmt.Fprintf(s.Out, "  Commit:   %s\n", data.GitCommit)
	fmt.Fprintf(s.Out, "  Built:    %s\n", data.BuildDate)
	fmt.Fprintf(s.Out, "  Go:       %s\n", data.GoVersion)
	fmt.Fprintf(s.Out, "  Platform: %s\n", data.Platform)
	return nil
}
