package launcher

import (
	"bufio"
	"context"
	"errors"
	"os"
	"regexp"
)

// frameworkIDPattern matches framework registration lines such as
// "Registered as framework ID 20240101-101010-16842879-5050-1-0007".
var frameworkIDPattern = regexp.MustCompile(`(?i)framework[ _-]?id[\s:=]+['"]?([A-Za-z0-9][A-Za-z0-9._-]*-[0-9]+)`)

// LogResolver resolves application ids from the launcher's captured logs.
type LogResolver struct {
	executor *Executor
}

// NewLogResolver returns a resolver over e's log files.
func NewLogResolver(e *Executor) *LogResolver {
	return &LogResolver{executor: e}
}

// ResolveApplicationID returns the first framework id found in stderr, then
// stdout, or "" if none is logged yet.
func (r *LogResolver) ResolveApplicationID(ctx context.Context, kernelID string) (string, error) {
	for _, path := range []string{r.executor.StderrPath(kernelID), r.executor.StdoutPath(kernelID)} {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := scanFrameworkID(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

func scanFrameworkID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if m := frameworkIDPattern.FindStringSubmatch(sc.Text()); m != nil {
			return m[1], nil
		}
	}
	return "", sc.Err()
}
