// Package dispatch hands compiled job descriptions to the rendering
// pipeline. A dispatch writes the description to a temporary file, starts
// the pipeline detached and returns without waiting for it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"syclopsui/internal/ctxlog"
	"syclopsui/internal/document"
)

// ErrDispatch marks failures to write the job file or start the pipeline.
var ErrDispatch = errors.New("dispatch failed")

// TimestampLayout formats Outcome.Timestamp.
const TimestampLayout = "2006_01_02_15_04_05"

// Mode selects how the pipeline runs.
type Mode string

const (
	ModeNone         Mode = "none"
	ModeScene        Mode = "scene"
	ModeBlenderCode  Mode = "blender-code"
	ModePipelineCode Mode = "pipeline-code"
)

// ParseMode maps a form value to a Mode. Empty and unknown values are
// ModeNone; ok is false for unknown values.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeNone:
		return ModeNone, true
	case ModeScene, ModeBlenderCode, ModePipelineCode:
		return m, true
	default:
		return ModeNone, false
	}
}

// Config locates the pipeline. It is passed in explicitly; nothing is
// resolved from the process environment.
type Config struct {
	// Executable is the program to run, e.g. "syclops" or a python binary.
	Executable string
	// Args are placed before the job arguments, e.g. the CLI script path.
	Args          []string
	InstallFolder string
	// WorkDir is the working directory of the pipeline process.
	WorkDir string
	// TempDir receives job files; empty means os.TempDir().
	TempDir string
}

// Outcome reports one dispatch.
type Outcome struct {
	Success    bool   `json:"success"`
	JobID      string `json:"job_id,omitempty"`
	Message    string `json:"message,omitempty"`
	ProcessID  int    `json:"process_id,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Command    string `json:"command,omitempty"`
	DebugMode  Mode   `json:"debug_mode,omitempty"`
	Note       string `json:"note,omitempty"`
	Error      string `json:"error,omitempty"`

	// Err is the failure cause; it wraps ErrDispatch.
	Err error `json:"-"`
}

// Starter starts cmd without waiting for it and returns its pid.
type Starter func(cmd *exec.Cmd) (int, error)

// Dispatcher starts pipeline jobs.
type Dispatcher struct {
	cfg   Config
	start Starter
	now   func() time.Time
	newID func() string
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithStarter replaces the process starter.
func WithStarter(s Starter) Option {
	return func(d *Dispatcher) { d.start = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New returns a Dispatcher for cfg.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:   cfg,
		start: StartDetached,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Dispatch writes doc to a fresh job file and starts the pipeline on it.
// Failures are reported in the Outcome; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, doc document.Document, mode Mode) Outcome {
	logger := ctxlog.FromContext(ctx)
	jobID := d.newID()
	if m, ok := ParseMode(string(mode)); ok {
		mode = m
	} else {
		logger.Warn("unknown debug mode, running without debugging", "debug_mode", string(mode))
		mode = ModeNone
	}

	path, err := d.writeArtifact(doc)
	if err != nil {
		logger.Error("write job description", "job_id", jobID, "error", err)
		return failed(jobID, mode, fmt.Errorf("%w: write job description: %v", ErrDispatch, err))
	}

	argv := d.Argv(path, mode)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = d.cfg.WorkDir
	pid, err := d.start(cmd)
	if err != nil {
		_ = os.Remove(path)
		logger.Error("start pipeline", "job_id", jobID, "command", argv[0], "error", err)
		out := failed(jobID, mode, fmt.Errorf("%w: start pipeline: %v", ErrDispatch, err))
		out.Command = strings.Join(argv, " ")
		return out
	}

	message, note := describe(mode)
	logger.Info("pipeline started", "job_id", jobID, "pid", pid, "job_file", path, "debug_mode", string(mode))
	return Outcome{
		Success:    true,
		JobID:      jobID,
		Message:    message,
		ProcessID:  pid,
		ConfigFile: path,
		Timestamp:  d.now().Format(TimestampLayout),
		Command:    strings.Join(argv, " "),
		DebugMode:  mode,
		Note:       note,
	}
}

// Argv builds the pipeline command line for a job file.
func (d *Dispatcher) Argv(jobFile string, mode Mode) []string {
	argv := make([]string, 0, len(d.cfg.Args)+7)
	argv = append(argv, d.cfg.Executable)
	argv = append(argv, d.cfg.Args...)
	argv = append(argv, "--job-description", jobFile, "--install-folder", d.cfg.InstallFolder)
	if m, _ := ParseMode(string(mode)); m != ModeNone {
		argv = append(argv, "--debug", string(m))
	}
	return argv
}

func (d *Dispatcher) writeArtifact(doc document.Document) (string, error) {
	data, err := document.Marshal(doc)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(d.cfg.TempDir, "*.syclops.yaml")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func failed(jobID string, mode Mode, err error) Outcome {
	return Outcome{
		Success:   false,
		JobID:     jobID,
		DebugMode: mode,
		Error:     err.Error(),
		Err:       err,
	}
}

func describe(mode Mode) (message, note string) {
	switch mode {
	case ModeScene:
		return "Syclops started in debug mode! Blender UI will open to inspect the scene.",
			"The Blender UI will open with the scene loaded. You can inspect and modify the scene before rendering."
	case ModeBlenderCode, ModePipelineCode:
		return fmt.Sprintf("Syclops started in %s debug mode!", mode),
			"Execution will pause for debugger attachment. Check the console for instructions."
	default:
		return "Syclops data generation started successfully!",
			"Data generation is running in the background. Check the output folder for results."
	}
}
