package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRoutePolicy_Evaluate(t *testing.T) {
	p := DefaultRoutePolicy()
	tests := []struct {
		path string
		want Requirement
	}{
		{"/api", RequiresAuthentication},
		{"/api/", RequiresAuthentication},
		{"/api/x", RequiresAuthentication},
		{"/api/admin/members", RequiresAuthentication},
		{"/book/list", RequiresAuthentication},
		{"/book", RequiresAuthentication},
		{"/ui/../api/x", RequiresAuthentication},
		{"//api//x", RequiresAuthentication},
		{"/", Public},
		{"", Public},
		{"/ui/list", Public},
		{"/login", Public},
		{"/logout", Public},
		{"/register", Public},
		{"/apix", Public},
		{"/books", Public},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Evaluate(tt.path))
		})
	}
}

func TestRoutePolicy_FirstMatchWins(t *testing.T) {
	p, err := NewRoutePolicy(
		RouteRule{Pattern: "/api/public/**", Requirement: Public},
		RouteRule{Pattern: "/api/**", Requirement: RequiresAuthentication},
	)
	require.NoError(t, err)

	assert.Equal(t, Public, p.Evaluate("/api/public/status"))
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/api/private"))
}

func TestRoutePolicy_SegmentWildcards(t *testing.T) {
	p, err := NewRoutePolicy(
		RouteRule{Pattern: "/files/*.pdf", Requirement: RequiresAuthentication},
		RouteRule{Pattern: "/a/**/z", Requirement: RequiresAuthentication},
	)
	require.NoError(t, err)

	assert.Equal(t, RequiresAuthentication, p.Evaluate("/files/report.pdf"))
	assert.Equal(t, Public, p.Evaluate("/files/sub/report.pdf"))
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/a/z"))
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/a/b/c/z"))
	assert.Equal(t, Public, p.Evaluate("/a/b/c"))
}

func TestNewRoutePolicy_RejectsBadPatterns(t *testing.T) {
	_, err := NewRoutePolicy(RouteRule{Pattern: "api/**"})
	assert.Error(t, err)

	_, err = NewRoutePolicy(RouteRule{Pattern: "/api/[x"})
	assert.Error(t, err)
}

func TestParseRoutePolicy(t *testing.T) {
	data := []byte(`
rules:
  - pattern: /api/health
    access: public
  - pattern: /api/**
    access: authenticated
  - pattern: /reports/**
    access: Authenticated
`)
	p, err := ParseRoutePolicy(data)
	require.NoError(t, err)

	assert.Len(t, p.Rules(), 3)
	assert.Equal(t, Public, p.Evaluate("/api/health"))
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/api/me"))
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/reports/2024"))
	assert.Equal(t, Public, p.Evaluate("/book/list"))
}

func TestParseRoutePolicy_Errors(t *testing.T) {
	_, err := ParseRoutePolicy([]byte(`rules: []`))
	assert.Error(t, err)

	_, err = ParseRoutePolicy([]byte("rules:\n  - pattern: /x\n    access: sometimes\n"))
	assert.Error(t, err)

	_, err = ParseRoutePolicy([]byte("rules: [unterminated"))
	assert.Error(t, err)
}

func TestLoadRoutePolicy(t *testing.T) {
	p, err := LoadRoutePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/book/list"))

	file := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(file, []byte("rules:\n  - pattern: /secret/**\n    access: authenticated\n"), 0o600))
	p, err = LoadRoutePolicy(file)
	require.NoError(t, err)
	assert.Equal(t, RequiresAuthentication, p.Evaluate("/secret/a"))
	assert.Equal(t, Public, p.Evaluate("/api/me"))

	_, err = LoadRoutePolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
