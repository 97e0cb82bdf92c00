// Package agent defines the generation agent kinds and their profiles.
//
// A profile pairs an agent kind with the system prompt and sampling
// parameters its Generate stage uses. Profiles ship with defaults for the
// standard dictation types and can be overridden from a YAML file.
package agent

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind identifies which generation profile a job is routed to.
type Kind string

// Kind constants for the standard dictation types.
const (
	KindClinicLetter    Kind = "clinic_letter"
	KindProcedureReport Kind = "procedure_report"
	KindEchoReport      Kind = "echo_report"
	KindTask            Kind = "task"
	KindNote            Kind = "note"
	KindSummary         Kind = "summary"
)

// Valid reports whether k is one of the known agent kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindClinicLetter, KindProcedureReport, KindEchoReport, KindTask, KindNote, KindSummary:
		return true
	}
	return false
}

// Profile configures one generation agent.
type Profile struct {
	// Kind is the agent identifier jobs reference.
	Kind Kind `yaml:"kind"`

	// System is the system prompt sent with every generation request.
	System string `yaml:"system"`

	// Output is the logical name of the produced document.
	Output string `yaml:"output"`

	// Temperature is the sampling temperature for the generation request.
	Temperature float64 `yaml:"temperature"`
}

// Defaults returns the built-in profiles for the standard dictation types.
func Defaults() []Profile {
	return []Profile{
		{
			Kind:        KindClinicLetter,
			System:      "You are a medical scribe drafting polished clinic correspondence. Return a concise, well-formatted letter body ready for review.",
			Output:      "clinic_letter.txt",
			Temperature: 0.3,
		},
		{
			Kind:        KindProcedureReport,
			System:      "You are a procedural documentation expert. Produce a structured report with sections: Indication, Procedure, Findings, Plan.",
			Output:      "procedure_report.txt",
			Temperature: 0.3,
		},
		{
			Kind:        KindEchoReport,
			System:      "Summarize this echocardiogram dictation in standard echo report format, including measurements when present.",
			Output:      "echo_report.txt",
			Temperature: 0.3,
		},
		{
			Kind:        KindTask,
			System:      "Create a clear actionable task description with bullet action items and deadlines if mentioned.",
			Output:      "task.txt",
			Temperature: 0.3,
		},
		{
			Kind:        KindNote,
			System:      "Create a concise SOAP-style note (Subjective, Objective, Assessment, Plan).",
			Output:      "note.txt",
			Temperature: 0.3,
		},
		{
			Kind:        KindSummary,
			System:      "Provide a concise summary of this dictation for inclusion in the patient's chart.",
			Output:      "summary.txt",
			Temperature: 0.2,
		},
	}
}

// Registry maps agent kinds to profiles. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[Kind]Profile
}

// NewRegistry creates a registry pre-populated with Defaults().
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[Kind]Profile)}
	for _, p := range Defaults() {
		r.profiles[p.Kind] = p
	}
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Kind] = p
}

// Get returns the profile for the given kind. Unknown kinds fall back to
// the summary profile, matching the original pipeline behaviour.
func (r *Registry) Get(kind Kind) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[kind]; ok {
		return p
	}
	return r.profiles[KindSummary]
}

// Kinds returns all registered agent kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.profiles))
	for k := range r.profiles {
		kinds = append(kinds, k)
	}
	return kinds
}

// file is the on-disk YAML shape for profile overrides.
type file struct {
	Agents []Profile `yaml:"agents"`
}

// LoadFile reads profile overrides from a YAML file and applies them on
// top of the registry's current contents.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("agent: read profiles %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("agent: parse profiles %s: %w", path, err)
	}

	for _, p := range f.Agents {
		if p.Kind == "" {
			return fmt.Errorf("agent: profile in %s missing kind", path)
		}
		r.Register(p)
	}
	return nil
}
