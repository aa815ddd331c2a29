package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevehiehn/piperun/internal/engine"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
	"github.com/stevehiehn/piperun/internal/pipeline"
)

// startRegistry serves a tiny package registry used by the HTTP step tests.
func startRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("GET /packages/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":%q,"latest":"1.5.1"}`, r.PathValue("name"))
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		w.Write(body)
	})
	mux.HandleFunc("POST /publish", func(w http.ResponseWriter, r *http.Request) {
		var pkg map[string]any
		if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		if _, ok := pkg["name"]; !ok {
			http.Error(w, `{"error":"missing field: name"}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"published":true}`)
	})
	mux.HandleFunc("GET /headers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token":      r.Header.Get("X-Registry-Token"),
			"request_id": r.Header.Get("X-Request-Id"),
		})
	})
	mux.HandleFunc("GET /error/{code}", func(w http.ResponseWriter, r *http.Request) {
		var code int
		fmt.Sscanf(r.PathValue("code"), "%d", &code)
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":"status %d"}`, code)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runYAML(t *testing.T, content string) *engine.Result {
	t.Helper()
	dir := t.TempDir()
	p := loadPipeline(t, dir, content)
	return runPipeline(t, p, dir, nil, false, engine.ModeRun)
}

func TestHTTPGet(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: http-get
steps:
  - id: health
    http:
      url: %s/health
    outputs:
      body: stdout
      code: status_code
`, srv.URL))

	require.True(t, result.Success, result.Errors)
	assert.JSONEq(t, `{"status":"ok"}`, result.Outputs["health.body"])
	assert.Equal(t, "200", result.Outputs["health.code"])
	assert.Equal(t, "GET "+srv.URL+"/health", result.Steps[0].Command)
}

func TestHTTPPostBody(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: http-post
steps:
  - id: publish
    http:
      url: %s/publish
      method: POST
      body: '{"name":"qrcode"}'
`, srv.URL))

	require.True(t, result.Success, result.Errors)
	assert.JSONEq(t, `{"published":true}`, result.Output)
}

func TestHTTPHeaders(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: http-headers
steps:
  - id: whoami
    http:
      url: %s/headers
      headers:
        X-Registry-Token: secret-token
        X-Request-Id: req-123
`, srv.URL))

	require.True(t, result.Success, result.Errors)
	assert.JSONEq(t, `{"token":"secret-token","request_id":"req-123"}`, result.Output)
}

func TestHTTPStepsChain(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: http-chain
steps:
  - id: lookup
    http:
      url: %[1]s/packages/qrcode
    outputs:
      body: stdout
  - id: echo
    http:
      url: %[1]s/echo
      method: POST
      body: '${{ steps.lookup.outputs.body }}'
`, srv.URL))

	require.True(t, result.Success, result.Errors)
	assert.JSONEq(t, `{"name":"qrcode","latest":"1.5.1"}`, result.Output)
}

func TestShellAndHTTPChain(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: mixed-chain
steps:
  - id: package_name
    run: printf qrcode
    outputs:
      name: stdout
  - id: lookup
    http:
      url: %s/packages/${{ steps.package_name.outputs.name }}
    outputs:
      body: stdout
  - id: report
    run: echo 'registry says ${{ steps.lookup.outputs.body }}'
`, srv.URL))

	require.True(t, result.Success, result.Errors)
	assert.Equal(t, `registry says {"name":"qrcode","latest":"1.5.1"}`, result.Output)
}

func TestHTTPErrorStatusFailsStep(t *testing.T) {
	srv := startRegistry(t)
	for _, code := range []int{404, 500} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			result := runYAML(t, fmt.Sprintf(`
name: http-error
steps:
  - id: fetch
    http:
      url: %s/error/%d
  - id: after
    run: echo unreachable
`, srv.URL, code))

			assert.False(t, result.Success)
			assert.Equal(t, "fetch", result.FailedStepID)
			assert.Equal(t, engine.StatusFailed, result.Steps[0].Status)
			assert.Contains(t, result.Steps[0].Error, fmt.Sprint(code))
			assert.Equal(t, engine.StatusSkipped, result.Steps[1].Status)
		})
	}
}

func TestHTTPRejectedPayload(t *testing.T) {
	srv := startRegistry(t)
	result := runYAML(t, fmt.Sprintf(`
name: http-rejected
steps:
  - id: publish
    http:
      url: %s/publish
      method: POST
      body: '{"version":"1.0.0"}'
`, srv.URL))

	assert.False(t, result.Success)
	assert.Contains(t, result.Failure().Message, "400")
	assert.Contains(t, result.Failure().Message, "missing field: name")
}

func TestShellExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		run      string
		exitCode int
		message  string
	}{
		{name: "success", run: "echo ok", exitCode: 0},
		{name: "exit 1", run: "exit 1", exitCode: 1, message: "exited with code 1"},
		{name: "exit 2", run: "exit 2", exitCode: 2, message: "exited with code 2"},
		{name: "stderr tail", run: `echo "bundle failed" >&2 && exit 1`, exitCode: 1, message: "exited with code 1: bundle failed"},
		{name: "pipe", run: "echo hello | grep nonexistent", exitCode: 1, message: "exited with code 1"},
		{name: "command not found", run: "definitely_not_a_command_piperun", exitCode: 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runYAML(t, fmt.Sprintf("name: exit\nsteps:\n  - id: step\n    run: '%s'\n", strings.ReplaceAll(tt.run, "'", "''")))

			assert.Equal(t, tt.exitCode, result.Steps[0].ExitCode)
			assert.Equal(t, tt.exitCode == 0, result.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, result.Failure().Message)
			}
		})
	}
}

func TestValidationFeedback(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		inputs  map[string]string
		wantErr string
	}{
		{
			name: "duplicate step id",
			yaml: "name: dup\nsteps:\n  - {id: s1, run: echo a}\n  - {id: s1, run: echo b}\n",
			wantErr: "duplicate",
		},
		{
			name: "forward reference",
			yaml: "name: fwd\nsteps:\n  - {id: s1, run: 'echo ${{ steps.s2.outputs.val }}'}\n  - {id: s2, run: echo hi, outputs: {val: stdout}}\n",
			wantErr: `forward reference to step "s2"`,
		},
		{
			name: "unknown action",
			yaml: "name: bad\nsteps:\n  - {id: s1, action: docker.push}\n",
			wantErr: "docker.push",
		},
		{
			name: "missing required input",
			yaml: "name: in\ninputs:\n  token: {required: true}\nsteps:\n  - {id: s1, run: 'echo ${{ inputs.token }}'}\n",
			inputs: map[string]string{},
			wantErr: "token",
		},
		{
			name: "run and action",
			yaml: "name: both\nsteps:\n  - {id: s1, run: echo hi, action: file.write}\n",
			wantErr: "multiple",
		},
		{
			name: "http without url",
			yaml: "name: nourl\nsteps:\n  - {id: s1, http: {method: GET}}\n",
			wantErr: "url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pipeline.Load([]byte(tt.yaml))
			require.NoError(t, err)

			err = pipeline.Validate(p, tt.inputs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, dagerrors.IsConfiguration(err))
		})
	}
}

func TestValidationErrorCarriesHint(t *testing.T) {
	p, err := pipeline.Load([]byte("name: hint\nsteps:\n  - {id: s1, run: echo hi, action: file.write}\n"))
	require.NoError(t, err)

	var runErr *dagerrors.RunError
	require.True(t, errors.As(pipeline.Validate(p, nil), &runErr))
	assert.NotEmpty(t, runErr.Hint)
}

func TestLoadRequiresName(t *testing.T) {
	_, err := pipeline.Load([]byte("steps:\n  - {id: s1, run: echo hi}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}
