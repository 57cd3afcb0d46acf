package config

import (
	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

// ProcessProxy returns the proxy configuration for new kernels.
func (c *Config) ProcessProxy() processproxy.Config {
	return processproxy.Config{
		Endpoint:            c.Mesos.Endpoint,
		LaunchTimeout:       c.Proxy.LaunchTimeout,
		PollInterval:        c.Proxy.PollInterval,
		MaxPollAttempts:     c.Proxy.MaxPollAttempts,
		ShutdownWaitTime:    c.Proxy.ShutdownWaitTime,
		MinShutdownWaitTime: c.Proxy.MinShutdownWaitTime,
	}
}

// ResourceOptions returns client options for the master endpoint.
func (c *Config) ResourceOptions() []mesos.ResourceOption {
	opts := []mesos.ResourceOption{
		mesos.WithDefaultTimeout(c.Mesos.Timeout),
		mesos.WithDefaultMaxAttempts(c.Mesos.MaxAttempts),
		mesos.WithDefaultGzipEncoding(c.Mesos.Gzip),
	}
	switch {
	case c.Mesos.Token != "":
		opts = append(opts, mesos.WithDefaultAuth(mesos.TokenAuth{Token: c.Mesos.Token}))
	case c.Mesos.Username != "":
		opts = append(opts, mesos.WithDefaultAuth(mesos.BasicAuth{Username: c.Mesos.Username, Password: c.Mesos.Password}))
	}
	if c.Mesos.RateLimit > 0 {
		opts = append(opts, mesos.WithRateLimit(c.Mesos.RateLimit))
	}
	return opts
}

// SessionS3 returns the S3 session store configuration.
func (c *Config) SessionS3() sessionstore.S3Config {
	s := c.Sessions.S3
	return sessionstore.S3Config{
		Bucket:         s.Bucket,
		Prefix:         s.Prefix,
		Region:         s.Region,
		Endpoint:       s.Endpoint,
		Profile:        s.Profile,
		ForcePathStyle: s.ForcePathStyle,
	}
}
