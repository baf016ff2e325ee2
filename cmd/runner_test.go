package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/upsync/internal/shared"
	tu "github.com/desertthunder/upsync/internal/testing"
)

// pipelineServer fakes the endpoints of the remote pipeline server the commands talk to.
type pipelineServer struct {
	mu       sync.Mutex
	loggedIn bool
	retries  []string
	triggers []string
	logouts  int
}

func (p *pipelineServer) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, code int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}

	mux.HandleFunc("GET /api/v1/auth/status", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.loggedIn {
			reply(w, 200, `{"code":0,"is_logged_in":false}`)
			return
		}
		reply(w, 200, `{"code":0,"is_logged_in":true,"user":{"mid":42,"name":"Alice"}}`)
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.loggedIn = false
		p.logouts++
		p.mu.Unlock()
		reply(w, 200, `{"code":0,"message":"ok"}`)
	})
	mux.HandleFunc("GET /api/v1/videos", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"code":0,"data":{"total":3,"page":1,"limit":100,"videos":[
			{"id":1,"video_id":"abc","title":"Keynote","status":"200","created_at":"2025-01-01T10:00:00Z","updated_at":"2025-01-01T11:00:00Z"},
			{"id":2,"video_id":"def","title":"Workshop","status":"999","created_at":"2025-01-02T10:00:00Z","updated_at":"2025-01-02T11:00:00Z"},
			{"id":3,"video_id":"ghi","title":"Panel","status":"400","bili_bvid":"BV1xx","created_at":"2025-01-03T10:00:00Z","updated_at":"2025-01-03T11:00:00Z"}
		]}}`)
	})
	mux.HandleFunc("GET /api/v1/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			reply(w, 404, `{"code":404,"message":"video not found"}`)
			return
		}
		reply(w, 200, `{"code":0,"data":{"id":1,"video_id":"abc","title":"Keynote","status":"200","url":"https://youtube.com/watch?v=abc",
			"task_steps":[
				{"step_name":"download_video","step_order":1,"status":"completed","duration":42},
				{"step_name":"generate_subtitles","step_order":2,"status":"failed","error_msg":"whisper crashed","can_retry":true}
			],
			"progress":{"total_steps":2,"completed_steps":1,"failed_steps":1,"progress_percentage":50}}}`)
	})
	mux.HandleFunc("GET /api/v1/videos/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"code":0,"data":{"video_id":"abc","directory":"/data/abc","files":[
			{"name":"video.mp4","size":1048576,"type":"video","modified":"2025-01-01T10:30:00Z"}
		]}}`)
	})
	mux.HandleFunc("POST /api/v1/videos/{id}/steps/{step}/retry", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.retries = append(p.retries, r.PathValue("id")+"/"+r.PathValue("step"))
		p.mu.Unlock()
		reply(w, 200, `{"code":0,"message":"retrying"}`)
	})
	mux.HandleFunc("POST /api/v1/videos/{id}/upload/{stage}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.triggers = append(p.triggers, r.PathValue("id")+"/"+r.PathValue("stage"))
		p.mu.Unlock()
		reply(w, 200, `{"code":0,"message":"started"}`)
	})
	return mux
}

type env struct {
	remote     *pipelineServer
	server     *httptest.Server
	configPath string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	remote := &pipelineServer{loggedIn: true}
	srv := httptest.NewServer(remote.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Server.BaseURL = srv.URL
	config.Server.RateLimit = 0
	config.Sync.PageSize = 2
	config.Database.Path = filepath.Join(dir, "upsync.db")

	configPath := filepath.Join(dir, "config.toml")
	if err := shared.SaveConfig(configPath, config); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return &env{remote: remote, server: srv, configPath: configPath}
}

// run executes one CLI invocation with a fresh runner, the way the binary would.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	output := &bytes.Buffer{}
	logger := shared.NewDiscardLogger()
	runner := NewRunner(RunnerOpts{Logger: logger, Output: output})

	argv := append([]string{"upsync", "--config", e.configPath}, args...)
	err := newApp(runner, logger).Run(context.Background(), argv)
	if closeErr := runner.Close(); closeErr != nil {
		t.Errorf("failed to close runner: %v", closeErr)
	}
	return output.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.client == nil {
				t.Error("expected pipeline client to be built")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient.Timeout != runner.config.Server.Timeout() {
				t.Errorf("expected client timeout %v, got %v", runner.config.Server.Timeout(), runner.httpClient.Timeout)
			}
		})

		t.Run("engines are built lazily", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.orch != nil || runner.db != nil {
				t.Error("expected no engines or cache before first use")
			}
		})
	})

	t.Run("Load", func(t *testing.T) {
		t.Run("missing file keeps defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if err := runner.Load(filepath.Join(t.TempDir(), "missing.toml")); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config.Server.BaseURL != shared.DefaultConfig().Server.BaseURL {
				t.Error("expected default base URL")
			}
		})

		t.Run("invalid config is rejected", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[sync]\npage_size = 0\n"), 0644); err != nil {
				t.Fatal(err)
			}

			runner := NewRunner(RunnerOpts{})
			err := runner.Load(path)
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, name := range []string{"setup", "login", "logout", "status", "tasks", "cache", "watch", "serve"} {
			if !names[name] {
				t.Errorf("expected command %q to be registered", name)
			}
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("setup", func(t *testing.T) {
		dir := t.TempDir()
		wd := tu.MustGetwd(t)
		tu.MustChdir(t, dir)
		t.Cleanup(func() { tu.MustChdir(t, wd) })

		e := &env{configPath: filepath.Join(dir, "config.toml")}
		out, err := e.run(t, "setup")
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		tu.AssertFileExists(t, e.configPath)
		tu.AssertFileExists(t, filepath.Join(dir, "upsync.db"))
		if !strings.Contains(out, "0 snapshots") {
			t.Errorf("expected empty cache summary, got %q", out)
		}
	})

	t.Run("status", func(t *testing.T) {
		e := newEnv(t)

		out, err := e.run(t, "status")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(out, "Signed in as Alice") {
			t.Errorf("expected signed-in status, got %q", out)
		}

		e.remote.mu.Lock()
		e.remote.loggedIn = false
		e.remote.mu.Unlock()

		out, err = e.run(t, "status")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(out, "Not signed in") {
			t.Errorf("expected signed-out status, got %q", out)
		}
	})

	t.Run("status falls back to the cached identity", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.run(t, "tasks", "list"); err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}

		e.server.Close()

		out, err := e.run(t, "status")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(out, "Server unreachable") || !strings.Contains(out, "Alice") {
			t.Errorf("expected cached identity, got %q", out)
		}
	})

	t.Run("status without server or cache fails", func(t *testing.T) {
		e := newEnv(t)
		e.server.Close()

		_, err := e.run(t, "status")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("tasks list", func(t *testing.T) {
		e := newEnv(t)

		tt := []struct {
			name    string
			args    []string
			want    []string
			notWant []string
		}{
			{name: "first page", args: nil, want: []string{"Keynote", "Workshop", "Page 1 of 2"}, notWant: []string{"Panel"}},
			{name: "second page", args: []string{"--page", "2"}, want: []string{"Panel"}, notWant: []string{"Keynote"}},
			{name: "category", args: []string{"--category", "failed"}, want: []string{"Workshop"}, notWant: []string{"Keynote", "Panel"}},
			{name: "csv", args: []string{"--format", "csv"}, want: []string{"ID,Title", "1,Keynote"}},
			{name: "markdown", args: []string{"--format", "markdown"}, want: []string{"| ID |", "Keynote"}},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				out, err := e.run(t, append([]string{"tasks", "list"}, tc.args...)...)
				if err != nil {
					t.Fatalf("tasks list failed: %v", err)
				}
				for _, w := range tc.want {
					if !strings.Contains(out, w) {
						t.Errorf("expected %q in output:\n%s", w, out)
					}
				}
				for _, w := range tc.notWant {
					if strings.Contains(out, w) {
						t.Errorf("did not expect %q in output:\n%s", w, out)
					}
				}
			})
		}
	})

	t.Run("tasks list rejects bad flags", func(t *testing.T) {
		e := newEnv(t)

		tt := []struct {
			name string
			args []string
		}{
			{name: "unknown category", args: []string{"--category", "archived"}},
			{name: "page out of range", args: []string{"--page", "9"}},
			{name: "unknown format", args: []string{"--format", "xml"}},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				_, err := e.run(t, append([]string{"tasks", "list"}, tc.args...)...)
				if !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("expected ErrInvalidFlag, got %v", err)
				}
			})
		}
	})

	t.Run("tasks list requires a session", func(t *testing.T) {
		e := newEnv(t)
		e.remote.loggedIn = false

		_, err := e.run(t, "tasks", "list")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("tasks list --cached", func(t *testing.T) {
		e := newEnv(t)

		_, err := e.run(t, "tasks", "list", "--cached")
		if !errors.Is(err, shared.ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss before any refresh, got %v", err)
		}

		if _, err := e.run(t, "tasks", "list"); err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}
		e.server.Close()

		out, err := e.run(t, "tasks", "list", "--cached", "--page", "2")
		if err != nil {
			t.Fatalf("cached list failed: %v", err)
		}
		if !strings.Contains(out, "Panel") || !strings.Contains(out, "(cached)") {
			t.Errorf("expected cached second page, got %q", out)
		}
	})

	t.Run("tasks list --output", func(t *testing.T) {
		e := newEnv(t)
		path := filepath.Join(t.TempDir(), "tasks.json")

		out, err := e.run(t, "tasks", "list", "--format", "json", "--output", path)
		if err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}
		if out != "" {
			t.Errorf("expected nothing on stdout, got %q", out)
		}
		if content := tu.MustReadFile(t, path); !strings.Contains(content, `"Keynote"`) {
			t.Errorf("expected tasks in export, got %s", content)
		}
	})

	t.Run("tasks show", func(t *testing.T) {
		e := newEnv(t)

		out, err := e.run(t, "tasks", "show", "1")
		if err != nil {
			t.Fatalf("tasks show failed: %v", err)
		}
		for _, w := range []string{"Keynote", "Generate subtitles", "whisper crashed"} {
			if !strings.Contains(out, w) {
				t.Errorf("expected %q in output:\n%s", w, out)
			}
		}

		out, err = e.run(t, "tasks", "show", "1", "--json")
		if err != nil {
			t.Fatalf("tasks show --json failed: %v", err)
		}
		if !strings.Contains(out, `"retryable": true`) {
			t.Errorf("expected JSON detail, got %s", out)
		}

		_, err = e.run(t, "tasks", "show", "404")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}

		_, err = e.run(t, "tasks", "show")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("tasks retry", func(t *testing.T) {
		e := newEnv(t)

		out, err := e.run(t, "tasks", "retry", "1", "generate_subtitles")
		if err != nil {
			t.Fatalf("tasks retry failed: %v", err)
		}
		if !strings.Contains(out, "Retry requested for Generate subtitles") {
			t.Errorf("unexpected output %q", out)
		}
		if len(e.remote.retries) != 1 || e.remote.retries[0] != "1/generate_subtitles" {
			t.Errorf("expected one retry call, got %v", e.remote.retries)
		}
	})

	t.Run("tasks trigger", func(t *testing.T) {
		e := newEnv(t)

		if _, err := e.run(t, "tasks", "trigger", "1", "video"); err != nil {
			t.Fatalf("tasks trigger failed: %v", err)
		}
		if len(e.remote.triggers) != 1 || e.remote.triggers[0] != "1/video" {
			t.Errorf("expected one trigger call, got %v", e.remote.triggers)
		}

		_, err := e.run(t, "tasks", "trigger", "1", "subtitle")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected subtitle upload to be refused for a ready task, got %v", err)
		}

		_, err = e.run(t, "tasks", "trigger", "1", "audio")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected unknown stage to be refused, got %v", err)
		}
		if len(e.remote.triggers) != 1 {
			t.Errorf("refused triggers must not reach the server, got %v", e.remote.triggers)
		}
	})

	t.Run("tasks files", func(t *testing.T) {
		e := newEnv(t)

		out, err := e.run(t, "tasks", "files", "1")
		if err != nil {
			t.Fatalf("tasks files failed: %v", err)
		}
		if !strings.Contains(out, "video.mp4") || !strings.Contains(out, "1.0 MiB") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("logout clears the cache", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.run(t, "tasks", "list"); err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}

		out, err := e.run(t, "cache", "info")
		if err != nil {
			t.Fatalf("cache info failed: %v", err)
		}
		if !strings.Contains(out, "Alice") || !strings.Contains(out, "Snapshots: 1") {
			t.Errorf("expected populated cache, got %q", out)
		}

		if _, err := e.run(t, "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if e.remote.logouts != 1 {
			t.Errorf("expected one remote logout, got %d", e.remote.logouts)
		}

		out, err = e.run(t, "cache", "info")
		if err != nil {
			t.Fatalf("cache info failed: %v", err)
		}
		if !strings.Contains(out, "Identity:  -") || !strings.Contains(out, "Snapshots: 0") {
			t.Errorf("expected empty cache after logout, got %q", out)
		}
	})

	t.Run("cache clear", func(t *testing.T) {
		e := newEnv(t)
		if _, err := e.run(t, "tasks", "list"); err != nil {
			t.Fatalf("tasks list failed: %v", err)
		}

		if _, err := e.run(t, "cache", "clear"); err != nil {
			t.Fatalf("cache clear failed: %v", err)
		}

		_, err := e.run(t, "tasks", "list", "--cached")
		if !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected ErrCacheMiss after clear, got %v", err)
		}
	})

	t.Run("login with a live session", func(t *testing.T) {
		e := newEnv(t)

		out, err := e.run(t, "login")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(out, "Already signed in as Alice") {
			t.Errorf("unexpected output %q", out)
		}
	})
}
