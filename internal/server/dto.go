package server

import (
	"syclopsui/internal/catalog"
	"syclopsui/internal/dispatch"
	"syclopsui/internal/domain"
	"syclopsui/internal/engine"
)

// Request inputs

// FormInput carries a form submission. The body itself is read from the
// request context so both JSON and url-encoded forms are accepted.
type FormInput struct {
	ContentType string `header:"Content-Type"`
}

type AssetsQuery struct {
	Kind string `query:"kind" doc:"asset kind, defaults to model"`
}

type JobsQuery struct {
	Limit int `query:"limit" minimum:"0" maximum:"500" doc:"max jobs to return"`
}

type JobPath struct {
	JobID string `path:"job_id"`
}

// Response payloads

type SaveConfigResponse struct {
	Success     bool   `json:"success"`
	FilePath    string `json:"file_path,omitempty"`
	YAMLContent string `json:"yaml_content,omitempty"`
	Error       string `json:"error,omitempty"`
}

type AssetsResponse struct {
	Assets []catalog.Asset `json:"assets"`
	Error  string          `json:"error,omitempty"`
}

type LaunchResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ProcessID int    `json:"process_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type JobsResponse struct {
	Items []domain.Job `json:"items"`
}

// Outputs

type saveConfigOutput struct {
	Status int
	Body   SaveConfigResponse
}

type previewOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type assetsOutput struct {
	Body AssetsResponse
}

type launchOutput struct {
	Status int
	Body   LaunchResponse
}

type generateOutput struct {
	Status int
	Body   dispatch.Outcome
}

type jobsOutput struct {
	Body JobsResponse
}

type jobOutput struct {
	Body engine.JobDetail
}

func assetsResponse(assets []catalog.Asset, err error) AssetsResponse {
	if assets == nil {
		assets = []catalog.Asset{}
	}
	resp := AssetsResponse{Assets: assets}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
