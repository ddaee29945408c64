package core

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Requirement is the access level a request path demands.
type Requirement int

const (
	Public Requirement = iota
	RequiresAuthentication
)

func (r Requirement) String() string {
	if r == RequiresAuthentication {
		return "authenticated"
	}
	return "public"
}

// ParseRequirement accepts "authenticated" or "public" in any case.
func ParseRequirement(s string) (Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "authenticated", "requires_authentication":
		return RequiresAuthentication, nil
	case "public", "permit_all":
		return Public, nil
	default:
		return Public, fmt.Errorf("unknown access requirement %q", s)
	}
}

// RouteRule maps an ant-style path pattern to a requirement. "**" matches any
// number of segments, including none; other segments use path.Match syntax.
type RouteRule struct {
	Pattern     string
	Requirement Requirement

	segments []string
}

// RoutePolicy is an ordered rule list; the first matching rule wins and
// unmatched paths are public. It is immutable after construction.
type RoutePolicy struct {
	rules []RouteRule
}

func NewRoutePolicy(rules ...RouteRule) (*RoutePolicy, error) {
	compiled := make([]RouteRule, 0, len(rules))
	for _, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("route pattern %q must start with /", r.Pattern)
		}
		r.segments = splitPath(r.Pattern)
		for _, seg := range r.segments {
			if _, err := path.Match(seg, ""); err != nil {
				return nil, fmt.Errorf("route pattern %q: %w", r.Pattern, err)
			}
		}
		compiled = append(compiled, r)
	}
	return &RoutePolicy{rules: compiled}, nil
}

// DefaultRoutePolicy protects /api/** and /book/**.
func DefaultRoutePolicy() *RoutePolicy {
	p, err := NewRoutePolicy(
		RouteRule{Pattern: "/api/**", Requirement: RequiresAuthentication},
		RouteRule{Pattern: "/book/**", Requirement: RequiresAuthentication},
	)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluate returns the requirement for requestPath. The path is cleaned first,
// so "/ui/../api/x" is judged as "/api/x".
func (p *RoutePolicy) Evaluate(requestPath string) Requirement {
	segs := splitPath(path.Clean("/" + requestPath))
	for _, r := range p.rules {
		if matchSegments(r.segments, segs) {
			return r.Requirement
		}
	}
	return Public
}

func (p *RoutePolicy) Rules() []RouteRule {
	out := make([]RouteRule, len(p.rules))
	copy(out, p.rules)
	return out
}

type routePolicyFile struct {
	Rules []struct {
		Pattern string `yaml:"pattern"`
		Access  string `yaml:"access"`
	} `yaml:"rules"`
}

// ParseRoutePolicy reads a YAML document of the form:
//
//	rules:
//	  - pattern: /api/**
//	    access: authenticated
func ParseRoutePolicy(data []byte) (*RoutePolicy, error) {
	var doc routePolicyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse route policy: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, errors.New("route policy has no rules")
	}
	rules := make([]RouteRule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		req, err := ParseRequirement(r.Access)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", r.Pattern, err)
		}
		rules = append(rules, RouteRule{Pattern: r.Pattern, Requirement: req})
	}
	return NewRoutePolicy(rules...)
}

// LoadRoutePolicy reads the policy file, or returns the default policy when file is empty.
func LoadRoutePolicy(file string) (*RoutePolicy, error) {
	if file == "" {
		return DefaultRoutePolicy(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read route policy %s: %w", file, err)
	}
	return ParseRoutePolicy(data)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pattern[1:], segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
