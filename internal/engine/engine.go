package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"syclopsui/internal/catalog"
	"syclopsui/internal/coerce"
	"syclopsui/internal/compiler"
	"syclopsui/internal/config"
	"syclopsui/internal/ctxlog"
	"syclopsui/internal/dispatch"
	"syclopsui/internal/document"
	"syclopsui/internal/domain"
	"syclopsui/internal/events"
	"syclopsui/internal/repo"
)

// SavedConfigName is the file name used for downloadable job descriptions.
const SavedConfigName = "syclops_config.yaml"

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Launcher   dispatch.Launcher
	Catalog    *catalog.Reader
	Now        func() time.Time
}

// New wires an Engine from cfg. db must already be migrated.
func New(db *sql.DB, cfg *config.Config, opts ...dispatch.Option) (Engine, error) {
	reader, err := catalog.NewReader(cfg.Catalog.CacheSize)
	if err != nil {
		return Engine{}, err
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Launcher: dispatch.Launcher{
			Command: cfg.AssetBrowser.Command,
			WorkDir: cfg.AssetBrowser.WorkDir,
		},
		Catalog: reader,
		Events:  events.Writer{},
		Now:     time.Now,
	}
	opts = append([]dispatch.Option{dispatch.WithClock(e.now)}, opts...)
	e.Dispatcher = dispatch.New(DispatchConfig(cfg), opts...)
	return e, nil
}

// DispatchConfig extracts the pipeline settings from cfg.
func DispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		Executable:    cfg.Pipeline.Executable,
		Args:          cfg.Pipeline.Args,
		InstallFolder: cfg.Pipeline.InstallFolder,
		WorkDir:       cfg.Pipeline.WorkDir,
		TempDir:       cfg.Jobs.TempDir,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Preview compiles raw and returns the rendered job description.
func (e Engine) Preview(raw compiler.RawParameters) ([]byte, error) {
	doc, err := compiler.Compile(raw)
	if err != nil {
		return nil, err
	}
	return document.Marshal(doc)
}

// SavedConfig is a job description written for download.
type SavedConfig struct {
	FilePath string
	YAML     string
}

// SaveConfig compiles raw and writes it to a fresh temporary directory.
func (e Engine) SaveConfig(ctx context.Context, raw compiler.RawParameters) (SavedConfig, error) {
	data, err := e.Preview(raw)
	if err != nil {
		return SavedConfig{}, err
	}
	path, err := writeSavedConfig(e.Config.Jobs.TempDir, SavedConfigName, data)
	if err != nil {
		return SavedConfig{}, err
	}
	ctxlog.FromContext(ctx).Info("job description saved", "path", path)
	return SavedConfig{FilePath: path, YAML: string(data)}, nil
}

// writeSavedConfig writes data as name inside a new directory under parent.
// The directory is removed again when the write fails.
func writeSavedConfig(parent, name string, data []byte) (string, error) {
	dir, err := os.MkdirTemp(parent, "syclops-config-")
	if err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// Generate compiles raw and dispatches it. The debug mode is read from the
// debug_mode field. Only invalid input is returned as an error; dispatch
// failures are reported in the Outcome.
func (e Engine) Generate(ctx context.Context, raw compiler.RawParameters) (dispatch.Outcome, error) {
	doc, err := compiler.Compile(raw)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	logger := ctxlog.FromContext(ctx)
	modeField := coerce.String(coerce.Fields(raw), "debug_mode", string(dispatch.ModeNone))
	mode, ok := dispatch.ParseMode(modeField)
	if !ok {
		logger.Warn("unknown debug mode, running without debugging", "debug_mode", modeField)
	}
	out := e.Dispatcher.Dispatch(ctx, doc, mode)
	if err := e.recordJob(ctx, out); err != nil {
		logger.Error("record job", "job_id", out.JobID, "error", err)
	}
	return out, nil
}

func (e Engine) recordJob(ctx context.Context, out dispatch.Outcome) error {
	if e.DB == nil {
		return nil
	}
	job := domain.Job{
		ID:         out.JobID,
		Status:     domain.JobStarted,
		ProcessID:  out.ProcessID,
		ConfigFile: out.ConfigFile,
		Command:    out.Command,
		DebugMode:  string(out.DebugMode),
		Message:    out.Message,
		Error:      out.Error,
		CreatedAt:  e.now().UTC().Format(time.RFC3339Nano),
	}
	evtType := events.JobDispatched
	payload := events.EventPayload{"process_id": out.ProcessID, "config_file": out.ConfigFile}
	if !out.Success {
		job.Status = domain.JobFailed
		evtType = events.JobFailed
		payload = events.EventPayload{"error": out.Error}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJobTx(ctx, tx, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, job.ID, payload); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return tx.Commit()
}

// Assets lists catalog assets of kind. The listing is empty, never nil,
// when the catalog cannot be read.
func (e Engine) Assets(kind string) ([]catalog.Asset, error) {
	if kind == "" {
		kind = catalog.KindModel
	}
	return e.Catalog.ListAssetsOfKind(e.Config.Catalog.Path, kind)
}

// LaunchAssetBrowser starts the configured asset browser.
func (e Engine) LaunchAssetBrowser(ctx context.Context) (int, error) {
	return e.Launcher.Launch(ctx)
}

// JobDetail is a ledger entry with its events.
type JobDetail struct {
	Job    domain.Job     `json:"job"`
	Events []domain.Event `json:"events"`
}

// Jobs lists dispatched jobs, newest first.
func (e Engine) Jobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, limit)
}

// Job returns one job and its events.
func (e Engine) Job(ctx context.Context, id string) (JobDetail, error) {
	job, err := e.Repo.GetJob(ctx, id)
	if err != nil {
		return JobDetail{}, err
	}
	evts, err := e.Repo.JobEvents(ctx, id)
	if err != nil {
		return JobDetail{}, err
	}
	return JobDetail{Job: job, Events: evts}, nil
}
