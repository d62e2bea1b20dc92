// Package encyclopedia maps raw model labels to user-facing disease text.
package encyclopedia

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

//go:embed diseases.yaml
var diseasesYAML []byte

const genericAdvisory = "No encyclopedia entry exists for this detection yet. " +
	"Isolate the plant, remove visibly affected leaves, and consult a local " +
	"agricultural extension office for a definitive diagnosis."

type entry struct {
	CanonicalName string `yaml:"canonicalName"`
	Description   string `yaml:"description"`
}

type Encyclopedia struct {
	entries map[string]entry
}

func Load() (*Encyclopedia, error) {
	entries := make(map[string]entry)
	if err := yaml.Unmarshal(diseasesYAML, &entries); err != nil {
		return nil, fmt.Errorf("parse disease encyclopedia: %w", err)
	}
	normalized := make(map[string]entry, len(entries))
	for label, e := range entries {
		normalized[normalize(label)] = e
	}
	return &Encyclopedia{entries: normalized}, nil
}

// Lookup never fails: unknown labels keep their raw text and get a generic
// advisory so the UI always has something to show.
func (e *Encyclopedia) Lookup(label string) domain.DiseaseInfo {
	if entry, ok := e.entries[normalize(label)]; ok {
		return domain.DiseaseInfo{
			CanonicalName: entry.CanonicalName,
			Description:   entry.Description,
		}
	}
	return domain.DiseaseInfo{
		CanonicalName: label,
		Description:   genericAdvisory,
	}
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(label, "_", " ")))
}
