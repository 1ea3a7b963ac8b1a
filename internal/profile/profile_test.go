package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBuiltinProfiles(t *testing.T) {
	r := NewRegistry("", "")

	for _, name := range []string{"conservative", "balanced", "permissive", "pii-focused", "content-moderation"} {
		p, err := r.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.PromptTemplate)
		assert.NotEmpty(t, p.ResponseTemplate)
	}
}

func TestResolveEmptyNameUsesDefault(t *testing.T) {
	r := NewRegistry("", "")
	p, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, p.Name)
}

func TestResolveUnknownProfileFails(t *testing.T) {
	r := NewRegistry("", "")
	_, err := r.Resolve("nope")
	require.Error(t, err)
}

func TestConfiguredDefaultsBackEmptySides(t *testing.T) {
	r := NewRegistry("env-prompt", "env-response")
	require.NoError(t, writeAndLoad(t, r, `
profiles:
  - name: custom
    description: only one side set
    prompt_template: custom-prompt
`))

	p, err := r.Resolve("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom-prompt", p.PromptTemplate)
	assert.Equal(t, "env-response", p.ResponseTemplate)
}

func TestLoadFileOverridesAndExtends(t *testing.T) {
	r := NewRegistry("", "")
	require.NoError(t, writeAndLoad(t, r, `
profiles:
  - name: balanced
    prompt_template: tuned-prompt
    response_template: tuned-response
  - name: finance
    prompt_template: finance-prompt
    response_template: finance-response
`))

	p, err := r.Resolve("balanced")
	require.NoError(t, err)
	assert.Equal(t, "tuned-prompt", p.PromptTemplate)

	p, err = r.Resolve("finance")
	require.NoError(t, err)
	assert.Equal(t, "finance-response", p.ResponseTemplate)

	// Untouched builtins survive the merge.
	_, err = r.Resolve("permissive")
	require.NoError(t, err)
}

func TestLoadFileRejectsNamelessEntry(t *testing.T) {
	r := NewRegistry("", "")
	err := writeAndLoad(t, r, `
profiles:
  - prompt_template: x
`)
	require.Error(t, err)

	// The registry keeps its previous state on a failed load.
	_, err = r.Resolve("balanced")
	require.NoError(t, err)
}

func writeAndLoad(t *testing.T, r *Registry, yaml string) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return r.LoadFile(path)
}
