package plugin

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the convention this runtime looks for when
// scanning a plugin directory, grounded on
// pkg/pluginsdk/manifest.go's ManifestFilename. ManifestFilenameYAML and
// ManifestFilenameYML are accepted as a convenience superset, the way
// the teacher's own config files read either YAML or JSON.
const (
	ManifestFilename     = "jaato.plugin.json"
	ManifestFilenameYAML = "jaato.plugin.yaml"
	ManifestFilenameYML  = "jaato.plugin.yml"
)

// Manifest describes a discoverable plugin before it is exposed:
// identity and its declared config schema. A discovered plugin is
// *available*; it becomes *active* only once Registry.Expose constructs
// and initializes it (spec §4.F).
type Manifest struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Description  string          `json:"description,omitempty"`
	Version      string          `json:"version,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Validate reports whether m has the minimum fields the Registry
// requires to register it.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("plugin: manifest is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("plugin: manifest id is required")
	}
	return nil
}

// DecodeManifestFile reads and parses one manifest file. The format is
// chosen by extension: .yaml/.yml is decoded with yaml.v3, everything
// else as JSON.
func DecodeManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: reading manifest %s: %w", path, err)
	}
	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var raw struct {
			ID           string `yaml:"id"`
			Name         string `yaml:"name"`
			Description  string `yaml:"description"`
			Version      string `yaml:"version"`
			ConfigSchema any    `yaml:"configSchema"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("plugin: decoding manifest %s: %w", path, err)
		}
		m = Manifest{ID: raw.ID, Name: raw.Name, Description: raw.Description, Version: raw.Version}
		if raw.ConfigSchema != nil {
			schema, err := json.Marshal(normalizeYAML(raw.ConfigSchema))
			if err != nil {
				return nil, fmt.Errorf("plugin: re-encoding configSchema in %s: %w", path, err)
			}
			m.ConfigSchema = schema
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("plugin: decoding manifest %s: %w", path, err)
		}
	}
	return &m, nil
}

// normalizeYAML recursively converts map[string]interface{} keys that
// yaml.v3 may produce as map[interface{}]interface{} in nested structures
// into a shape encoding/json can marshal directly.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeYAML(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprint(k)] = normalizeYAML(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeYAML(vv)
		}
		return out
	default:
		return val
	}
}

func isManifestFilename(name string) bool {
	switch name {
	case ManifestFilename, ManifestFilenameYAML, ManifestFilenameYML:
		return true
	default:
		return false
	}
}

// ManifestInfo pairs a decoded Manifest with the path it was loaded
// from.
type ManifestInfo struct {
	Manifest *Manifest
	Path     string
}

// DiscoverManifests scans each root in paths for ManifestFilename,
// recursing into subdirectories (one plugin per subdirectory, spec
// §4.F's "directory scan of a plugins folder"). Discovery is idempotent:
// calling it again simply re-reads the same files.
func DiscoverManifests(paths []string) (map[string]ManifestInfo, error) {
	manifests := make(map[string]ManifestInfo)
	for _, root := range paths {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("plugin: stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if err := discoverOne(manifests, root); err != nil {
				return nil, err
			}
			continue
		}
		if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isManifestFilename(d.Name()) {
				return nil
			}
			return discoverOne(manifests, path)
		}); err != nil {
			return nil, fmt.Errorf("plugin: walking %s: %w", root, err)
		}
	}
	return manifests, nil
}

func discoverOne(manifests map[string]ManifestInfo, path string) error {
	m, err := DecodeManifestFile(path)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if existing, ok := manifests[m.ID]; ok {
		return fmt.Errorf("plugin: duplicate manifest id %q (%s, %s)", m.ID, existing.Path, path)
	}
	manifests[m.ID] = ManifestInfo{Manifest: m, Path: path}
	return nil
}

// SortedIDs returns the manifest IDs of m in deterministic order, used
// wherever aggregation must iterate "in deterministic plugin order"
// (spec §4.F).
func SortedIDs(m map[string]ManifestInfo) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
