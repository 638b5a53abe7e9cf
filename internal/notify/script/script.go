// Package script implements the Script trigger dispatch (spec §4.9): the
// MatchRecord is passed as a single JSON CLI argument to a configured
// interpreter; success requires exit status 0 and the last non-empty
// stdout line to parse as "true" (case-insensitive).
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/internal/model"
)

const defaultTimeout = 10 * time.Second

// Runner executes Script trigger configs.
type Runner struct{}

// New builds a script Runner.
func New() *Runner { return &Runner{} }

// Run executes cfg against record, returning the script's boolean verdict.
// "javascript" runs in-process via goja; every other language value spawns
// the matching external interpreter (python3 for "python", sh for "bash" or
// unset).
func (r *Runner) Run(ctx context.Context, cfg *model.ScriptConfig, record model.MatchRecord) (bool, error) {
	input, err := json.Marshal(record)
	if err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "encode match record", err)
	}

	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if cfg.Language == "javascript" {
		return r.runJS(cfg.Path, input)
	}
	return r.runProcess(ctx, cfg.Language, cfg.Path, string(input))
}

// runJS loads the script source from cfg.Path and evaluates it inside a
// fresh goja runtime, with the decoded match record bound to the global
// `input` so the script can read it without its own JSON parsing.
func (r *Runner) runJS(path string, input []byte) (bool, error) {
	source, err := readScript(path)
	if err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "read script", err)
	}

	vm := goja.New()
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "decode match record", err)
	}
	if err := vm.Set("input", decoded); err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "bind input", err)
	}

	value, err := vm.RunString(source)
	if err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "run script", err)
	}
	return value.ToBoolean(), nil
}

func (r *Runner) runProcess(ctx context.Context, language, path, inputJSON string) (bool, error) {
	name, args := interpreterFor(language, path)
	cmd := exec.CommandContext(ctx, name, append(args, inputJSON)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return false, errors.Wrap(errors.KindTrigger, "notify.script", "execute "+stderr.String(), err)
	}

	return parseVerdict(stdout.String())
}

func interpreterFor(language, path string) (string, []string) {
	switch language {
	case "python":
		return "python3", []string{path}
	default:
		return "sh", []string{path}
	}
}

func parseVerdict(stdout string) (bool, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return false, errors.New(errors.KindTrigger, "notify.script", "script produced no output")
	}
	lines := strings.Split(trimmed, "\n")
	last := strings.ToLower(strings.TrimSpace(lines[len(lines)-1]))
	switch last {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, errors.New(errors.KindTrigger, "notify.script", "last line of output is not a valid boolean: "+last)
	}
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
