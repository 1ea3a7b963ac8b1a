// Package profile maps named safety profiles to classifier template pairs.
// A profile selects filtering strictness: one template for user-authored
// text, one for model-authored text.
package profile

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Profile is a named bundle of two classifier template identifiers.
type Profile struct {
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	PromptTemplate   string `yaml:"prompt_template"`
	ResponseTemplate string `yaml:"response_template"`
}

// DefaultName is resolved when a request names no profile.
const DefaultName = "balanced"

func builtinProfiles() map[string]Profile {
	profiles := map[string]Profile{
		"conservative": {
			Description:      "All filters at low confidence thresholds; blocks aggressively",
			PromptTemplate:   "conservative-prompt",
			ResponseTemplate: "conservative-response",
		},
		"balanced": {
			Description:      "Default filtering strictness",
			PromptTemplate:   "balanced-prompt",
			ResponseTemplate: "balanced-response",
		},
		"permissive": {
			Description:      "High confidence thresholds only; minimal blocking",
			PromptTemplate:   "permissive-prompt",
			ResponseTemplate: "permissive-response",
		},
		"pii-focused": {
			Description:      "Sensitive-data inspection and de-identification only",
			PromptTemplate:   "pii-prompt",
			ResponseTemplate: "pii-response",
		},
		"content-moderation": {
			Description:      "Responsible-AI categories only",
			PromptTemplate:   "moderation-prompt",
			ResponseTemplate: "moderation-response",
		},
	}
	for name, p := range profiles {
		p.Name = name
		profiles[name] = p
	}
	return profiles
}

// Registry resolves profile names to template pairs. The builtin set can be
// overridden or extended from a YAML file, swapped atomically on reload.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile

	// Deployment-wide template fallbacks applied when a profile entry
	// leaves one side empty.
	defaultPrompt   string
	defaultResponse string
}

// NewRegistry builds a registry of the builtin profiles. promptTemplate and
// responseTemplate are the configured direction defaults backing profiles
// with unset sides.
func NewRegistry(promptTemplate, responseTemplate string) *Registry {
	return &Registry{
		profiles:        builtinProfiles(),
		defaultPrompt:   promptTemplate,
		defaultResponse: responseTemplate,
	}
}

// Resolve returns the named profile, or the default when name is empty.
func (r *Registry) Resolve(name string) (Profile, error) {
	if name == "" {
		name = DefaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown safety profile %q", name)
	}
	if r.defaultPrompt != "" && p.PromptTemplate == "" {
		p.PromptTemplate = r.defaultPrompt
	}
	if r.defaultResponse != "" && p.ResponseTemplate == "" {
		p.ResponseTemplate = r.defaultResponse
	}
	return p, nil
}

// Names returns the sorted profile names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadFile merges profiles from a YAML file over the builtin set. Entries
// with a known name override; new names extend.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile file: %w", err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse profile file %q: %w", path, err)
	}

	merged := builtinProfiles()
	for _, p := range f.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profile file %q: entry without a name", path)
		}
		merged[p.Name] = p
	}

	r.mu.Lock()
	r.profiles = merged
	r.mu.Unlock()
	return nil
}
