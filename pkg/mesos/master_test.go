package mesos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameworksFixture = `{
  "type": "GET_FRAMEWORKS",
  "get_frameworks": {
    "frameworks": [
      {"framework_info": {"id": {"value": "fw-active-2"}, "name": "spark-b"}, "active": true},
      {"framework_info": {"id": {"value": "fw-active-1"}, "name": "spark-a"}, "active": true}
    ],
    "completed_frameworks": [
      {"framework_info": {"id": {"value": "fw-done-1"}, "name": "spark-c"}}
    ]
  }
}`

type fakeMaster struct {
	t        *testing.T
	response string
	status   int
	calls    []map[string]any
}

func (f *fakeMaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "/api/v1", r.URL.Path)
	assert.Equal(f.t, http.MethodPost, r.Method)

	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	f.calls = append(f.calls, body)

	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = w.Write([]byte(f.response))
}

func newFakeMaster(t *testing.T, response string) (*fakeMaster, *Master) {
	t.Helper()
	fm := &fakeMaster{t: t, response: response}
	srv := httptest.NewServer(fm)
	t.Cleanup(srv.Close)

	endpoint, err := NewResource(srv.URL, fastRetry)
	require.NoError(t, err)
	return fm, NewMaster(endpoint)
}

func TestMaster_ListFrameworks(t *testing.T) {
	fm, m := newFakeMaster(t, frameworksFixture)

	active, completed, err := m.ListFrameworks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"fw-active-2", "fw-active-1"}, active)
	assert.Equal(t, []string{"fw-done-1"}, completed)
	require.Len(t, fm.calls, 1)
	assert.Equal(t, map[string]any{"type": "GET_FRAMEWORKS"}, fm.calls[0])
}

func TestMaster_ListFrameworks_MissingLists(t *testing.T) {
	_, m := newFakeMaster(t, `{"type":"GET_FRAMEWORKS","get_frameworks":{}}`)

	active, completed, err := m.ListFrameworks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, completed)
}

func TestMaster_ListFrameworks_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"missing response key", `{"type":"GET_FRAMEWORKS"}`},
		{"not an object", `[1,2]`},
		{"list is not a list", `{"get_frameworks":{"frameworks":{"a":1}}}`},
		{"entry without id", `{"get_frameworks":{"frameworks":[{"framework_info":{"name":"x"}}]}}`},
		{"empty id", `{"get_frameworks":{"completed_frameworks":[{"framework_info":{"id":{"value":""}}}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := newFakeMaster(t, tt.response)

			_, _, err := m.ListFrameworks(context.Background())
			var base *Error
			require.ErrorAs(t, err, &base)
			assert.Contains(t, base.Message, "malformed GET_FRAMEWORKS response")
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestMaster_FrameworkState(t *testing.T) {
	tests := []struct {
		id   string
		want FrameworkState
	}{
		{"fw-active-1", FrameworkActive},
		{"fw-active-2", FrameworkActive},
		{"fw-done-1", FrameworkCompleted},
		{"fw-missing", FrameworkUnknown},
		{"", FrameworkUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, m := newFakeMaster(t, frameworksFixture)

			state, err := m.FrameworkState(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestMaster_FrameworkState_PropagatesErrors(t *testing.T) {
	fm, m := newFakeMaster(t, "forbidden")
	fm.status = http.StatusForbidden

	state, err := m.FrameworkState(context.Background(), "fw-active-1")
	assert.True(t, IsAuthorization(err))
	assert.Equal(t, FrameworkUnknown, state)
	assert.Len(t, fm.calls, 1)
}

func TestMaster_Teardown(t *testing.T) {
	fm, m := newFakeMaster(t, "")
	fm.status = http.StatusAccepted

	require.NoError(t, m.Teardown(context.Background(), "fw-active-1"))
	require.Len(t, fm.calls, 1)
	assert.Equal(t, map[string]any{
		"type":     "TEARDOWN",
		"teardown": map[string]any{"framework_id": map[string]any{"value": "fw-active-1"}},
	}, fm.calls[0])
}

func TestMaster_Health(t *testing.T) {
	_, m := newFakeMaster(t, `{"type":"GET_HEALTH","get_health":{"healthy":true}}`)

	healthy, err := m.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestFrameworkState_String(t *testing.T) {
	assert.Equal(t, "ACTIVE", FrameworkActive.String())
	assert.Equal(t, "COMPLETED", FrameworkCompleted.String())
	assert.Equal(t, "UNKNOWN", FrameworkUnknown.String())
}

func TestFieldPath(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": map[string]any{"c": "x"}}}

	p, err := compileFieldPath("$.a.b.c")
	require.NoError(t, err)
	v, ok := p.String(doc)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = mustFieldPath("a.missing").Eval(doc)
	assert.False(t, ok)

	_, err = compileFieldPath("a..b")
	assert.Error(t, err)
	_, err = compileFieldPath(" ")
	assert.Error(t, err)
}
