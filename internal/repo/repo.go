package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"syclopsui/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const jobColumns = `id,status,COALESCE(process_id,0),COALESCE(config_file,''),COALESCE(command,''),debug_mode,COALESCE(message,''),COALESCE(error,''),created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.Status, &j.ProcessID, &j.ConfigFile, &j.Command, &j.DebugMode, &j.Message, &j.Error, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	return j, err
}

func (r Repo) InsertJobTx(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO jobs(id,status,process_id,config_file,command,debug_mode,message,error,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Status, nullableInt(j.ProcessID), nullable(j.ConfigFile), nullable(j.Command), j.DebugMode, nullable(j.Message), nullable(j.Error), j.CreatedAt)
	return err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

// ListJobs returns the newest jobs first.
func (r Repo) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// JobEvents returns the events recorded for a job, oldest first.
func (r Repo) JobEvents(ctx context.Context, jobID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(job_id,''),payload_json FROM events WHERE job_id=? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.JobID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
