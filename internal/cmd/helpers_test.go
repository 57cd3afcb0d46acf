package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mesosproxy/internal/config"
)

// fakeMaster serves the operator calls the CLI uses.
type fakeMaster struct {
	mu        sync.Mutex
	active    []string
	completed []string
	healthy   bool
	teardowns []string
}

func (f *fakeMaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var call struct {
		Type     string `json:"type"`
		Teardown struct {
			FrameworkID struct {
				Value string `json:"value"`
			} `json:"framework_id"`
		} `json:"teardown"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &call); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch call.Type {
	case "GET_FRAMEWORKS":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "GET_FRAMEWORKS",
			"get_frameworks": map[string]any{
				"frameworks":           frameworkList(f.active),
				"completed_frameworks": frameworkList(f.completed),
			},
		})
	case "GET_HEALTH":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":       "GET_HEALTH",
			"get_health": map[string]any{"healthy": f.healthy},
		})
	case "TEARDOWN":
		id := call.Teardown.FrameworkID.Value
		f.teardowns = append(f.teardowns, id)
		if i := slices.Index(f.active, id); i >= 0 {
			f.active = slices.Delete(f.active, i, i+1)
			f.completed = append(f.completed, id)
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func frameworkList(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{
			"framework_info": map[string]any{"id": map[string]any{"value": id}},
		})
	}
	return out
}

// setupCLI loads a config pointed at master and an isolated sessions dir.
func setupCLI(t *testing.T, master http.Handler) (*config.Config, *httptest.Server) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))

	srv := httptest.NewServer(master)
	t.Cleanup(srv.Close)

	cfg, err := config.Load(context.Background(), map[string]any{
		"mesos.endpoint":          srv.URL,
		"mesos.max_attempts":      1,
		"sessions.dir":            filepath.Join(home, "sessions"),
		"proxy.poll_interval":     "10ms",
		"proxy.max_poll_attempts": 3,
	})
	require.NoError(t, err)

	orig := loadedConfig
	loadedConfig = cfg
	t.Cleanup(func() { loadedConfig = orig })
	return cfg, srv
}

// runCommand invokes run with c wired to a buffer and a background context.
func runCommand(t *testing.T, c *cobra.Command, run func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetContext(context.Background())
	t.Cleanup(func() { c.SetOut(nil) })
	err := run(c, args)
	return buf.String(), err
}
