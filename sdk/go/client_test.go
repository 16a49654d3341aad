package syclopsuisdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientRoutes(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		switch r.URL.Path {
		case "/generate_data":
			var fields map[string]any
			if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
				t.Errorf("decode body: %v", err)
			}
			json.NewEncoder(w).Encode(Outcome{Success: true, JobID: "job-1", DebugMode: fields["debug_mode"].(string)})
		case "/preview":
			w.Header().Set("Content-Type", "application/yaml")
			io.WriteString(w, "steps: 1\n")
		case "/jobs":
			io.WriteString(w, `{"items":[{"id":"job-1","status":"started","debug_mode":"none","created_at":"2024-01-01T00:00:00Z"}]}`)
		case "/jobs/missing":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":"not_found"}}`)
		default:
			io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()
	out, err := c.Generate(ctx, Fields{"debug_mode": "scene"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !out.Success || out.JobID != "job-1" || out.DebugMode != "scene" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	yaml, err := c.Preview(ctx, Fields{})
	if err != nil || string(yaml) != "steps: 1\n" {
		t.Fatalf("preview = %q, %v", yaml, err)
	}
	jobs, err := c.Jobs(ctx, 5)
	if err != nil || len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("jobs = %+v, %v", jobs, err)
	}
	if _, err := c.Assets(ctx, "environment"); err != nil {
		t.Fatalf("assets: %v", err)
	}
	_, err = c.Job(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
	want := []string{
		"POST /generate_data",
		"POST /preview",
		"GET /jobs?limit=5",
		"GET /assets?kind=environment",
		"GET /jobs/missing",
	}
	if len(seen) != len(want) {
		t.Fatalf("requests = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("request %d = %q, want %q", i, seen[i], want[i])
		}
	}
}
