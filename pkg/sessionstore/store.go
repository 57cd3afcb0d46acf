// Package sessionstore persists process proxy records so a restarted gateway
// can reattach to running kernels.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no record exists for the kernel.
	ErrNotFound = errors.New("record not found")

	// ErrAccessDenied indicates the backend refused the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnavailable indicates the backend could not be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Record is the persisted form of a proxy.
//
// NOTE: Field names are part of the on-disk contract; extend additively.
type Record struct {
	processproxy.ProcessInfo
	State    string    `json:"state,omitempty"`
	Endpoint string    `json:"endpoint,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store persists records keyed by kernel id.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, kernelID string) (*Record, error)
	Delete(ctx context.Context, kernelID string) error
	List(ctx context.Context) ([]Record, error)
}

// validateKernelID rejects ids that cannot be used as a path segment or key.
func validateKernelID(kernelID string) (string, error) {
	id := strings.TrimSpace(kernelID)
	if id == "" {
		return "", fmt.Errorf("kernel_id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid kernel_id %q", kernelID)
	}
	return id, nil
}

func sortNewestFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SavedAt.After(recs[j].SavedAt)
	})
}
