package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"syclopsui/internal/compiler"
	"syclopsui/internal/ctxlog"
	"syclopsui/internal/dispatch"
	"syclopsui/internal/engine"
	"syclopsui/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid input: expected an object of fields"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the config UI API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(data))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Syclops Config UI API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerHealth(group)
	registerSaveConfig(group, cfg.Engine)
	registerPreview(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerLaunchAssetBrowser(group, cfg.Engine)
	registerGenerate(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// requestLogger stores logger in the request context and logs each request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, compiler.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, dispatch.ErrNoLauncher):
		return newAPIError(http.StatusServiceUnavailable, "not_configured", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

// statusFor maps an error to the status used by the form endpoints, which
// answer with {success:false, error} bodies instead of the error envelope.
func statusFor(err error) int {
	if se := handleError(err); se != nil {
		return se.GetStatus()
	}
	return http.StatusOK
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	errSchema := &huma.Schema{
		Type: "object",
		Properties: map[string]*huma.Schema{
			"error": {
				Type: "object",
				Properties: map[string]*huma.Schema{
					"code":    {Type: "string"},
					"message": {Type: "string"},
					"details": {Type: "object"},
				},
			},
		},
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Syclops Config UI API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSaveConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-config",
		Method:      http.MethodPost,
		Path:        "/save_config",
		Summary:     "Compile form fields and save the job description",
		Description: "Accepts a JSON object or a url-encoded form of configuration fields.",
	}, func(ctx context.Context, input *FormInput) (*saveConfigOutput, error) {
		raw, err := compiler.DecodeRaw(bodyBytes(ctx), input.ContentType)
		if err != nil {
			return &saveConfigOutput{Status: statusFor(err), Body: SaveConfigResponse{Error: err.Error()}}, nil
		}
		saved, err := e.SaveConfig(ctx, raw)
		if err != nil {
			ctxlog.FromContext(ctx).Error("save config", "error", err)
			return &saveConfigOutput{Status: statusFor(err), Body: SaveConfigResponse{Error: err.Error()}}, nil
		}
		return &saveConfigOutput{
			Status: http.StatusOK,
			Body:   SaveConfigResponse{Success: true, FilePath: saved.FilePath, YAMLContent: saved.YAML},
		}, nil
	})
}

func registerPreview(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-config",
		Method:      http.MethodPost,
		Path:        "/preview",
		Summary:     "Compile form fields and return the job description",
	}, func(ctx context.Context, input *FormInput) (*previewOutput, error) {
		raw, err := compiler.DecodeRaw(bodyBytes(ctx), input.ContentType)
		if err != nil {
			return nil, handleError(err)
		}
		data, err := e.Preview(raw)
		if err != nil {
			return nil, handleError(err)
		}
		return &previewOutput{
			ContentType:        "application/yaml",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", engine.SavedConfigName),
			Body:               data,
		}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	list := func(ctx context.Context, kind string) *assetsOutput {
		assets, err := e.Assets(kind)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("asset catalog unavailable", "error", err)
		}
		return &assetsOutput{Body: assetsResponse(assets, err)}
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-assets",
		Method:      http.MethodPost,
		Path:        "/get_assets",
		Summary:     "List model assets from the asset catalog",
	}, func(ctx context.Context, _ *struct{}) (*assetsOutput, error) {
		return list(ctx, ""), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List catalog assets by kind",
	}, func(ctx context.Context, input *AssetsQuery) (*assetsOutput, error) {
		return list(ctx, input.Kind), nil
	})
}

func registerLaunchAssetBrowser(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "launch-asset-browser",
		Method:      http.MethodPost,
		Path:        "/launch_asset_browser",
		Summary:     "Start the asset browser",
	}, func(ctx context.Context, _ *struct{}) (*launchOutput, error) {
		pid, err := e.LaunchAssetBrowser(ctx)
		if err != nil {
			ctxlog.FromContext(ctx).Error("launch asset browser", "error", err)
			return &launchOutput{Status: statusFor(err), Body: LaunchResponse{Error: err.Error()}}, nil
		}
		return &launchOutput{
			Status: http.StatusOK,
			Body:   LaunchResponse{Success: true, Message: "Asset browser launched", ProcessID: pid},
		}, nil
	})
}

func registerGenerate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-data",
		Method:      http.MethodPost,
		Path:        "/generate_data",
		Summary:     "Compile form fields and start the pipeline",
		Description: "The pipeline runs detached; the response reports the started process. Set debug_mode to scene, blender-code or pipeline-code to debug the run.",
	}, func(ctx context.Context, input *FormInput) (*generateOutput, error) {
		raw, err := compiler.DecodeRaw(bodyBytes(ctx), input.ContentType)
		if err != nil {
			return &generateOutput{Status: statusFor(err), Body: dispatch.Outcome{Error: err.Error()}}, nil
		}
		out, err := e.Generate(ctx, raw)
		if err != nil {
			return &generateOutput{Status: statusFor(err), Body: dispatch.Outcome{Error: err.Error()}}, nil
		}
		if !out.Success {
			out.Error = "Failed to start Syclops generation: " + out.Error
		}
		return &generateOutput{Status: http.StatusOK, Body: out}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List dispatched jobs, newest first",
	}, func(ctx context.Context, input *JobsQuery) (*jobsOutput, error) {
		items, err := e.Jobs(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobsOutput{Body: JobsResponse{Items: items}}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get a dispatched job and its events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *JobPath) (*jobOutput, error) {
		detail, err := e.Job(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: detail}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}
