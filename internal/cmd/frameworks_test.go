package cmd

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/output"
)

func TestFilterFrameworks(t *testing.T) {
	active := []string{"abc-0001", "abc-0002", "xyz-0003"}
	completed := []string{"abc-0000"}

	tests := []struct {
		name    string
		state   string
		pattern string
		want    []frameworkEntry
		wantErr bool
	}{
		{
			name:  "all",
			state: "all",
			want: []frameworkEntry{
				{"abc-0001", mesos.FrameworkActive},
				{"abc-0002", mesos.FrameworkActive},
				{"xyz-0003", mesos.FrameworkActive},
				{"abc-0000", mesos.FrameworkCompleted},
			},
		},
		{
			name:    "glob across states",
			pattern: "abc-*",
			want: []frameworkEntry{
				{"abc-0001", mesos.FrameworkActive},
				{"abc-0002", mesos.FrameworkActive},
				{"abc-0000", mesos.FrameworkCompleted},
			},
		},
		{
			name:    "active with brace glob",
			state:   "ACTIVE",
			pattern: "{xyz,none}-*",
			want:    []frameworkEntry{{"xyz-0003", mesos.FrameworkActive}},
		},
		{
			name:  "completed",
			state: "completed",
			want:  []frameworkEntry{{"abc-0000", mesos.FrameworkCompleted}},
		},
		{name: "no match", pattern: "zzz*", want: nil},
		{name: "bad state", state: "running", wantErr: true},
		{name: "bad glob", pattern: "[abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := filterFrameworks(active, completed, tt.state, tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunFrameworksList(t *testing.T) {
	fm := &fakeMaster{active: []string{"fw-0001", "fw-0002"}, completed: []string{"fw-0000"}}
	setupCLI(t, fm)

	origMatch, origState, origJSON := frameworksMatch, frameworksState, frameworksJSON
	defer func() { frameworksMatch, frameworksState, frameworksJSON = origMatch, origState, origJSON }()

	t.Run("table", func(t *testing.T) {
		frameworksMatch, frameworksState, frameworksJSON = "", "all", false
		out, err := runCommand(t, frameworksListCmd, runFrameworksList)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 4)
		assert.Contains(t, lines[0], "FRAMEWORK ID")
		assert.Contains(t, lines[1], "ACTIVE")
		assert.Contains(t, lines[3], "COMPLETED")
		assert.Contains(t, lines[3], "fw-0000")
	})

	t.Run("jsonl", func(t *testing.T) {
		frameworksMatch, frameworksState, frameworksJSON = "*-0002", "all", true
		out, err := runCommand(t, frameworksListCmd, runFrameworksList)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)

		var first output.Record
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, output.TypeFramework, first.Type)
		var fw output.FrameworkRecord
		require.NoError(t, json.Unmarshal(first.Data, &fw))
		assert.Equal(t, output.FrameworkRecord{ID: "fw-0002", State: "ACTIVE"}, fw)

		var last output.Record
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
		assert.Equal(t, output.TypeSummary, last.Type)
		var sum output.SummaryRecord
		require.NoError(t, json.Unmarshal(last.Data, &sum))
		assert.Equal(t, 2, sum.Active)
		assert.Equal(t, 1, sum.Completed)
		assert.Equal(t, 1, sum.Matched)
	})
}

func TestRunFrameworksState(t *testing.T) {
	setupCLI(t, &fakeMaster{active: []string{"fw-1"}, completed: []string{"fw-2"}})

	out, err := runCommand(t, frameworksStateCmd, runFrameworksState, "fw-2")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED\n", out)

	out, err = runCommand(t, frameworksStateCmd, runFrameworksState, "fw-9")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN\n", out)
}
