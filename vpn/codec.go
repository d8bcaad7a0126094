package vpn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// profilesDocument is the on-disk layout of a YAML profiles file.
type profilesDocument struct {
	Profiles []Profile `yaml:"profiles"`
}

// EncodeYAML serializes profiles into a YAML document.
func EncodeYAML(profiles []Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(profilesDocument{Profiles: profiles}); err != nil {
		return nil, fmt.Errorf("failed to serialize profiles: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize profiles: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeYAML parses a YAML document produced by EncodeYAML.
// Unknown fields are rejected.
func DecodeYAML(data []byte) ([]Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc profilesDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	return doc.Profiles, nil
}

// ReadYAMLFile loads profiles from a YAML file on disk.
func ReadYAMLFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	return DecodeYAML(data)
}

// EncodeJSON serializes a single profile for key/value and SQL stores.
func EncodeJSON(p Profile) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile %s: %w", p.ID, err)
	}
	return data, nil
}

// DecodeJSON parses a profile encoded with EncodeJSON.
func DecodeJSON(data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, nil
}
