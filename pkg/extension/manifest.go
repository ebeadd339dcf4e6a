package extension

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ManifestFilename is the manifest file an extension directory must
// carry.
const ManifestFilename = "loom.extension.json"

// Manifest describes an extension module on disk: its identity, its
// declared capabilities, its visibility scope, and an optional schema
// for its configuration.
type Manifest struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Version      string          `json:"version,omitempty"`
	Description  string          `json:"description,omitempty"`
	Author       string          `json:"author,omitempty"`
	Capabilities []Capability    `json:"capabilities,omitempty"`
	ProjectDir   string          `json:"projectDir,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

func DecodeManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}

func DecodeManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return DecodeManifest(data)
}

func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("manifest id is required")
	}
	for _, c := range m.Capabilities {
		switch c {
		case CapabilityEvents, CapabilityTools:
		default:
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// ToMetadata builds registration metadata from the manifest, falling
// back to the id when no display name is declared.
func (m *Manifest) ToMetadata() Metadata {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = m.ID
	}
	return Metadata{
		Name:        name,
		Version:     m.Version,
		Description: m.Description,
		Author:      m.Author,
	}
}

// ValidateConfig validates per-extension configuration against the
// manifest's config schema. A manifest without a schema accepts any
// configuration.
func (m *Manifest) ValidateConfig(config any) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(m.ConfigSchema) == 0 {
		return nil
	}

	schema, err := CompileSchema(m.ConfigSchema)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode extension config: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode extension config: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("extension config invalid: %w", err)
	}
	return nil
}
