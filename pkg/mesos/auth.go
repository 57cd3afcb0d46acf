package mesos

import (
	"errors"
	"net/http"
)

// Auth attaches a credential to an outgoing request. Implementations are
// opaque to the client.
type Auth interface {
	Apply(req *http.Request) error
}

// AuthFunc adapts a function to Auth.
type AuthFunc func(req *http.Request) error

// Apply calls f(req).
func (f AuthFunc) Apply(req *http.Request) error {
	return f(req)
}

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply sets the Authorization header.
func (a BasicAuth) Apply(req *http.Request) error {
	if a.Username == "" {
		return errors.New("basic auth: username is empty")
	}
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// TokenAuth sends "Authorization: <Scheme> <Token>". Scheme defaults to
// "Bearer".
type TokenAuth struct {
	Token  string
	Scheme string

	// Raw sends "token=<Token>" instead, as DC/OS expects.
	Raw bool
}

// Apply sets the Authorization header.
func (a TokenAuth) Apply(req *http.Request) error {
	if a.Token == "" {
		return errors.New("token auth: token is empty")
	}
	if a.Raw {
		req.Header.Set("Authorization", "token="+a.Token)
		return nil
	}
	scheme := a.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}
	req.Header.Set("Authorization", scheme+" "+a.Token)
	return nil
}
