// Package dataset moves whole entity sets between a service and serialized
// documents held in blob storage or fixture files.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"spacenet/pkg/domain"
)

// DocumentVersion is the only document layout understood by Decode.
const DocumentVersion = 1

// Format is a document serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ContentType returns the media type blobs of this format are stored with.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported dataset format %q", s)
}

// FormatForKey infers the format from a key or file extension, defaulting to JSON.
func FormatForKey(key string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(path.Ext(key), ".")); err == nil {
		return f
	}
	return FormatJSON
}

// Document holds read-shape records for every kind. Records carry their "id".
type Document struct {
	Version    int              `json:"version" yaml:"version" mapstructure:"version"`
	ExportedAt string           `json:"exported_at,omitempty" yaml:"exported_at,omitempty" mapstructure:"exported_at"`
	Nodes      []map[string]any `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges      []map[string]any `json:"edges" yaml:"edges" mapstructure:"edges"`
	Elements   []map[string]any `json:"elements" yaml:"elements" mapstructure:"elements"`
	Resources  []map[string]any `json:"resources" yaml:"resources" mapstructure:"resources"`
}

// Records returns the records held for kind.
func (d *Document) Records(kind domain.EntityKind) []map[string]any {
	switch kind {
	case domain.KindNode:
		return d.Nodes
	case domain.KindEdge:
		return d.Edges
	case domain.KindElement:
		return d.Elements
	case domain.KindResource:
		return d.Resources
	}
	return nil
}

func (d *Document) set(kind domain.EntityKind, records []map[string]any) {
	switch kind {
	case domain.KindNode:
		d.Nodes = records
	case domain.KindEdge:
		d.Edges = records
	case domain.KindElement:
		d.Elements = records
	case domain.KindResource:
		d.Resources = records
	}
}

// Len counts records across kinds.
func (d *Document) Len() int {
	return len(d.Nodes) + len(d.Edges) + len(d.Elements) + len(d.Resources)
}

// Encode serializes the document.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml dataset: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported dataset format %q", format)
}

// Decode parses data into a document. Unknown top-level keys are rejected.
// JSON numbers are kept as json.Number so integer ids survive exactly.
func Decode(data []byte, format Format) (Document, error) {
	raw := make(map[string]any)
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Document{}, fmt.Errorf("decode json dataset: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, fmt.Errorf("decode yaml dataset: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("unsupported dataset format %q", format)
	}
	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &doc,
	})
	if err != nil {
		return Document{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Document{}, fmt.Errorf("decode dataset: %w", err)
	}
	if doc.Version != DocumentVersion {
		return Document{}, fmt.Errorf("unsupported dataset version %d", doc.Version)
	}
	return doc, nil
}
