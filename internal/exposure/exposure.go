// Package exposure computes where a machine's server is reachable from
// outside the infrastructure.
//
// The same computation runs twice: once while provisioning, to set up the
// routing rule, and once when the runtime is queried, to report the server
// URL. Every Strategy is therefore a pure function of its configuration and
// the (runtime identity, machine, server) tuple. There is no randomness and no
// dependency on the current time.
package exposure

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"wsruntime/internal/model"
)

const (
	MultiHostName  = "multi-host"
	SinglePortName = "single-port"
)

// Config configures the exposure strategies.
type Config struct {
	// Domain is the wildcard domain suffix used by the multi-host strategy.
	Domain string
	// Host is the shared ingress host used by the single-port strategy.
	Host string
	// Port is the external port of the ingress. 0, 80 and 443 are omitted
	// from URLs when they match the scheme.
	Port int
	// Protocol is the external scheme, "http" or "https".
	Protocol string
}

// Rule describes how external traffic reaches one server.
type Rule struct {
	Host       string
	PathPrefix string
	// Name is a DNS-1123 label unique per (workspace, machine, server). It
	// names routers, ingresses and middlewares.
	Name string
	// Port is the container port with any transport suffix stripped.
	Port int
}

// Strategy computes routing rules and URLs for servers.
type Strategy interface {
	Name() string
	Rule(id model.RuntimeIdentity, machine, server string, cfg model.ServerConfig) (Rule, error)
	URL(rule Rule, cfg model.ServerConfig) string
}

// New returns the strategy selected by name.
func New(name string, cfg Config) (Strategy, error) {
	if cfg.Protocol == "" {
		cfg.Protocol = "http"
	}
	if cfg.Protocol != "http" && cfg.Protocol != "https" {
		return nil, fmt.Errorf("unsupported external protocol %q", cfg.Protocol)
	}
	switch name {
	case MultiHostName, "":
		if cfg.Domain == "" {
			return nil, fmt.Errorf("%s exposure requires a domain", MultiHostName)
		}
		return &MultiHost{cfg: cfg}, nil
	case SinglePortName:
		if cfg.Host == "" {
			return nil, fmt.Errorf("%s exposure requires a host", SinglePortName)
		}
		return &SinglePort{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown exposure strategy %q", name)
	}
}

// MultiHost gives every server its own host name below a wildcard domain:
// <server>-<machine>-<workspace>.<domain>.
type MultiHost struct {
	cfg Config
}

func (s *MultiHost) Name() string { return MultiHostName }

func (s *MultiHost) Rule(id model.RuntimeIdentity, machine, server string, cfg model.ServerConfig) (Rule, error) {
	port, err := cfg.PortNumber()
	if err != nil {
		return Rule{}, err
	}
	name := DNSLabel(server, machine, id.WorkspaceID)
	return Rule{
		Host:       name + "." + s.cfg.Domain,
		PathPrefix: "/",
		Name:       name,
		Port:       port,
	}, nil
}

func (s *MultiHost) URL(rule Rule, cfg model.ServerConfig) string {
	return buildURL(s.cfg, rule, cfg)
}

// SinglePort routes every server of every workspace through one host and
// port, distinguishing servers by path prefix: /<workspace>/<machine>/<server>.
type SinglePort struct {
	cfg Config
}

func (s *SinglePort) Name() string { return SinglePortName }

func (s *SinglePort) Rule(id model.RuntimeIdentity, machine, server string, cfg model.ServerConfig) (Rule, error) {
	port, err := cfg.PortNumber()
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Host:       s.cfg.Host,
		PathPrefix: "/" + id.WorkspaceID + "/" + machine + "/" + server,
		Name:       DNSLabel(server, machine, id.WorkspaceID),
		Port:       port,
	}, nil
}

func (s *SinglePort) URL(rule Rule, cfg model.ServerConfig) string {
	return buildURL(s.cfg, rule, cfg)
}

func buildURL(c Config, rule Rule, server model.ServerConfig) string {
	scheme := c.Protocol
	switch strings.ToLower(server.Protocol) {
	case "ws", "wss":
		scheme = "ws"
		if c.Protocol == "https" {
			scheme = "wss"
		}
	}

	host := rule.Host
	if c.Port != 0 && !defaultPort(scheme, c.Port) {
		host += ":" + strconv.Itoa(c.Port)
	}
	return scheme + "://" + host + joinPath(rule.PathPrefix, server.Path)
}

func defaultPort(scheme string, port int) bool {
	switch scheme {
	case "http", "ws":
		return port == 80
	case "https", "wss":
		return port == 443
	}
	return false
}

func joinPath(prefix, p string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(p, "/")
}

const (
	maxLabelLength        = 63
	lowerCaseEncodeBase32 = "0123456789abcdefghijklmnopqrstuv"
)

var (
	invalidChars   = regexp.MustCompile("[^a-z0-9-]+")
	base32encoding = base32.NewEncoding(lowerCaseEncodeBase32).WithPadding(base32.NoPadding)
)

// DNSLabel joins parts with '-' into a valid DNS-1123 label. When the plain
// join could collide with another tuple (a part with characters outside
// [a-z0-9-], or one containing '-' among several parts), or when the name would
// exceed 63 characters, it is suffixed with a digest of the raw parts so it
// stays unique and stable.
//
//	DNSLabel("ide", "dev", "ws1")        -> "ide-dev-ws1"
//	DNSLabel("exec-agent", "dev", "ws1") -> "exec-agent-dev-ws1-<digest>"
func DNSLabel(parts ...string) string {
	clean := make([]string, len(parts))
	exact := true
	for i, p := range parts {
		lower := strings.ToLower(p)
		clean[i] = strings.Trim(invalidChars.ReplaceAllString(lower, "-"), "-")
		if clean[i] != lower || (len(parts) > 1 && strings.Contains(lower, "-")) {
			exact = false
		}
	}
	name := strings.Trim(strings.Join(clean, "-"), "-")
	if exact && name != "" && len(name) <= maxLabelLength {
		return name
	}

	digest := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	suffix := base32encoding.EncodeToString(digest[:])[:8]
	keep := maxLabelLength - len(suffix) - 1
	if len(name) > keep {
		name = strings.Trim(name[:keep], "-")
	}
	if name == "" {
		return "x-" + suffix
	}
	return name + "-" + suffix
}
