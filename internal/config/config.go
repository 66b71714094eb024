// Package config loads engine configuration from CUE files.
//
// A config file is a CUE (or JSON) struct validated against the embedded
// #Config schema. Unknown fields are rejected and every field has a
// default, so an empty file is a valid config.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved engine configuration.
type Config struct {
	Database     string
	TickInterval time.Duration
	DefaultDelay time.Duration
	Workers      int
	LogLevel     slog.Level
}

// file mirrors #Config for decoding.
type file struct {
	Database     string `json:"database"`
	TickInterval string `json:"tick_interval"`
	DefaultDelay string `json:"default_delay"`
	Workers      int    `json:"workers"`
	LogLevel     string `json:"log_level"`
}

// Error is a configuration error with the CUE position when known.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := build(cuecontext.New(), nil, "")
	if err != nil {
		// The embedded schema is fixed; failing here is a build defect.
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	return cfg
}

// Load reads and validates the config file at path. An empty path returns
// Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Path: path, Message: fmt.Sprintf("read config: %v", err)}
	}
	return Parse(path, data)
}

// Parse validates config source. filename is used in error positions.
func Parse(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, convertError(filename, err)
	}
	return build(ctx, &v, filename)
}

// build unifies an optional user value with the schema and decodes it.
func build(ctx *cue.Context, user *cue.Value, filename string) (Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, err
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))
	if user != nil {
		v = v.Unify(*user)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, convertError(filename, err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return Config{}, convertError(filename, err)
	}
	return f.resolve(filename)
}

// resolve checks what the schema cannot express: duration syntax and
// ranges.
func (f file) resolve(filename string) (Config, error) {
	tick, err := time.ParseDuration(f.TickInterval)
	if err != nil || tick <= 0 {
		return Config{}, &Error{Path: filename, Message: fmt.Sprintf("tick_interval: want positive duration, got %q", f.TickInterval)}
	}
	delay, err := time.ParseDuration(f.DefaultDelay)
	if err != nil || delay < 0 {
		return Config{}, &Error{Path: filename, Message: fmt.Sprintf("default_delay: want non-negative duration, got %q", f.DefaultDelay)}
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return Config{}, &Error{Path: filename, Message: fmt.Sprintf("log_level: %v", err)}
	}
	return Config{
		Database:     f.Database,
		TickInterval: tick,
		DefaultDelay: delay,
		Workers:      f.Workers,
		LogLevel:     level,
	}, nil
}

// convertError keeps the first CUE error with its position.
func convertError(filename string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: filename, Message: err.Error()}
	}
	first := errs[0]
	return &Error{
		Path:    filename,
		Message: first.Error(),
		Pos:     first.Position(),
	}
}
