package mesos

import (
	"context"
	"fmt"
	"slices"
)

// APIPath is the operator API path relative to the master endpoint.
const APIPath = "api/v1"

// FrameworkState is the coarse projection of a framework's scheduler state.
type FrameworkState int

const (
	// FrameworkUnknown means the id is in neither list: not yet visible.
	FrameworkUnknown FrameworkState = iota
	FrameworkActive
	FrameworkCompleted
)

func (s FrameworkState) String() string {
	switch s {
	case FrameworkActive:
		return "ACTIVE"
	case FrameworkCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

var frameworkIDPath = mustFieldPath("framework_info.id.value")

// Master queries the master operator API.
type Master struct {
	api *Resource
}

// NewMaster returns a Master for the operator API below endpoint.
func NewMaster(endpoint *Resource) *Master {
	return &Master{api: endpoint.Subresource(APIPath)}
}

// Resource returns the operator API resource.
func (m *Master) Resource() *Resource {
	return m.api
}

// call posts an operator call and returns the object under its response key.
func (m *Master) call(ctx context.Context, body callBody) (map[string]any, error) {
	doc, err := m.api.PostJSON(ctx, body)
	if err != nil {
		return nil, err
	}
	key := body.Type.ResponseKey()
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("malformed %s response: expected a JSON object", body.Type)}
	}
	result, ok := obj[key].(map[string]any)
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("malformed %s response: missing %q", body.Type, key)}
	}
	return result, nil
}

// ListFrameworks returns the ids of active and completed frameworks in the
// order the master reports them.
func (m *Master) ListFrameworks(ctx context.Context) (active, completed []string, err error) {
	result, err := m.call(ctx, callBody{Type: CallGetFrameworks})
	if err != nil {
		return nil, nil, err
	}
	if active, err = frameworkIDs(result, "frameworks"); err != nil {
		return nil, nil, err
	}
	if completed, err = frameworkIDs(result, "completed_frameworks"); err != nil {
		return nil, nil, err
	}
	return active, completed, nil
}

func frameworkIDs(result map[string]any, list string) ([]string, error) {
	raw, ok := result[list]
	if !ok || raw == nil {
		return []string{}, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("malformed %s response: %s is not a list", CallGetFrameworks, list)}
	}
	ids := make([]string, 0, len(entries))
	for i, entry := range entries {
		id, ok := frameworkIDPath.String(entry)
		if !ok {
			return nil, &Error{Message: fmt.Sprintf("malformed %s response: %s[%d] has no %s",
				CallGetFrameworks, list, i, frameworkIDPath.text())}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FrameworkState classifies id against a fresh framework listing. The
// operator API has no single-framework lookup, so this is a full scan.
func (m *Master) FrameworkState(ctx context.Context, id string) (FrameworkState, error) {
	active, completed, err := m.ListFrameworks(ctx)
	if err != nil {
		return FrameworkUnknown, err
	}
	switch {
	case slices.Contains(active, id):
		return FrameworkActive, nil
	case slices.Contains(completed, id):
		return FrameworkCompleted, nil
	default:
		return FrameworkUnknown, nil
	}
}

// Teardown asks the master to tear down a framework. The master answers
// 202 with an empty body.
func (m *Master) Teardown(ctx context.Context, id string) error {
	body := callBody{
		Type:     CallTeardown,
		Teardown: &teardownBody{FrameworkID: idValue{Value: id}},
	}
	_, err := m.api.Request(ctx, MethodPost, WithJSONPayload(body))
	return err
}

// Health reports the master's own health view.
func (m *Master) Health(ctx context.Context) (bool, error) {
	result, err := m.call(ctx, callBody{Type: CallGetHealth})
	if err != nil {
		return false, err
	}
	healthy, ok := result["healthy"].(bool)
	if !ok {
		return false, &Error{Message: fmt.Sprintf("malformed %s response: missing healthy", CallGetHealth)}
	}
	return healthy, nil
}
