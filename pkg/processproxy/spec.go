package processproxy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LaunchSpec is a kernel launch description read from YAML (or JSON, which
// YAML accepts).
//
//	kernel_id: 3f7c...
//	argv: ["/opt/kernels/spark/bin/run.sh", "--RemoteProcessProxy.kernel-id", "{kernel_id}"]
//	env:
//	  SPARK_HOME: /opt/spark
//	process_proxy:
//	  config:
//	    mesos_endpoint: http://mesos-master:5050
//	    launch_timeout: 60s
type LaunchSpec struct {
	Command      `yaml:",inline"`
	ProcessProxy struct {
		Config ProxyOverrides `yaml:"config"`
	} `yaml:"process_proxy"`
}

// ProxyOverrides are per-kernel settings that win over gateway-wide ones.
type ProxyOverrides struct {
	MesosEndpoint string `yaml:"mesos_endpoint"`
	LaunchTimeout string `yaml:"launch_timeout"`
}

// kernelIDToken is substituted in argv and env values.
const kernelIDToken = "{kernel_id}"

// LoadLaunchSpec reads and validates a launch spec file.
func LoadLaunchSpec(path string) (*LaunchSpec, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read launch spec: %w", err)
	}
	return ParseLaunchSpec(data)
}

// ParseLaunchSpec parses a launch spec.
func ParseLaunchSpec(data []byte) (*LaunchSpec, error) {
	var spec LaunchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse launch spec: %w", err)
	}
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("launch spec: argv is required")
	}
	if _, err := spec.launchTimeout(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *LaunchSpec) launchTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(s.ProcessProxy.Config.LaunchTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("launch spec: invalid launch_timeout %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("launch spec: launch_timeout must be positive")
	}
	return d, nil
}

// Apply returns cfg with the spec's overrides applied.
func (s *LaunchSpec) Apply(cfg Config) Config {
	if ep := strings.TrimSpace(s.ProcessProxy.Config.MesosEndpoint); ep != "" {
		cfg.Endpoint = ep
	}
	if d, err := s.launchTimeout(); err == nil && d > 0 {
		cfg.LaunchTimeout = d
	}
	return cfg
}

// CommandFor returns the launch command for kernelID with {kernel_id}
// substituted.
func (s *LaunchSpec) CommandFor(kernelID string) Command {
	cmd := Command{KernelID: kernelID, Dir: s.Dir}
	for _, arg := range s.Argv {
		cmd.Argv = append(cmd.Argv, strings.ReplaceAll(arg, kernelIDToken, kernelID))
	}
	if len(s.Env) > 0 {
		cmd.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			cmd.Env[k] = strings.ReplaceAll(v, kernelIDToken, kernelID)
		}
	}
	return cmd
}
