package domain

// Job statuses recorded in the ledger.
const (
	JobStarted = "started"
	JobFailed  = "failed"
)

// Job is one dispatch of a job description to the pipeline.
type Job struct {
	ID         string `json:"id"`
	Status     string `json:"status" enum:"started,failed"`
	ProcessID  int    `json:"process_id,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
	Command    string `json:"command,omitempty"`
	DebugMode  string `json:"debug_mode" enum:"none,scene,blender-code,pipeline-code"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Event is an entry in the job event log.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	JobID   string         `json:"job_id,omitempty"`
	Payload map[string]any `json:"payload"`
}
