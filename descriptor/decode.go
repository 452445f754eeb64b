package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a descriptor file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FileSuffix precedes the format extension in descriptor file names,
// as in CustomApi.credentials.yaml
const FileSuffix = ".credentials"

// FormatFromPath returns the format of a descriptor file, or false when the
// path does not follow the <TypeName>.credentials.<ext> convention
func FormatFromPath(path string) (Format, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if !strings.HasSuffix(strings.TrimSuffix(base, ext), FileSuffix) {
		return "", false
	}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// TypeNameFromPath returns the <TypeName> part of a descriptor file name
func TypeNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, FileSuffix)
}

type fileSpec struct {
	Name             string         `yaml:"name" json:"name" toml:"name"`
	DisplayName      string         `yaml:"displayName" json:"displayName" toml:"displayName"`
	DocumentationURL string         `yaml:"documentationUrl" json:"documentationUrl" toml:"documentationUrl"`
	Properties       []propertySpec `yaml:"properties" json:"properties" toml:"properties"`
	Authenticate     authSpec       `yaml:"authenticate" json:"authenticate" toml:"authenticate"`
}

type propertySpec struct {
	DisplayName string `yaml:"displayName" json:"displayName" toml:"displayName"`
	Name        string `yaml:"name" json:"name" toml:"name"`
	Type        Kind   `yaml:"type" json:"type" toml:"type"`
	Default     any    `yaml:"default" json:"default" toml:"default"`
	Secret      bool   `yaml:"secret" json:"secret" toml:"secret"`
	Description string `yaml:"description" json:"description" toml:"description"`
}

type authSpec struct {
	Type    Mode                     `yaml:"type" json:"type" toml:"type"`
	Headers map[string][]segmentSpec `yaml:"headers" json:"headers" toml:"headers"`
}

// segmentSpec is one template element: exactly one of literal or field is set
type segmentSpec struct {
	Literal *string `yaml:"literal" json:"literal" toml:"literal"`
	Field   *string `yaml:"field" json:"field" toml:"field"`
}

// Decode parses a descriptor file. The result is not validated; Register does that.
func Decode(data []byte, format Format) (*Descriptor, error) {
	var file fileSpec

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse yaml descriptor: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse json descriptor: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse toml descriptor: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported descriptor format %q", format)
	}

	return file.build()
}

func (s fileSpec) build() (*Descriptor, error) {
	d := &Descriptor{
		Name:             s.Name,
		DisplayName:      s.DisplayName,
		DocumentationURL: s.DocumentationURL,
		Auth: AuthRule{
			Mode:    s.Authenticate.Type,
			Headers: make(map[string]Template, len(s.Authenticate.Headers)),
		},
	}

	for _, p := range s.Properties {
		d.Fields = append(d.Fields, FieldSpec{
			DisplayName: p.DisplayName,
			Name:        p.Name,
			Kind:        p.Type,
			Default:     p.Default,
			Secret:      p.Secret,
			Description: p.Description,
		})
	}

	for header, segs := range s.Authenticate.Headers {
		tmpl := make(Template, 0, len(segs))
		for i, seg := range segs {
			switch {
			case seg.Literal != nil && seg.Field != nil:
				return nil, &ValidationError{Descriptor: s.Name,
					Reason: fmt.Sprintf("header %q segment %d sets both literal and field", header, i)}
			case seg.Literal != nil:
				tmpl = append(tmpl, Literal(*seg.Literal))
			case seg.Field != nil:
				tmpl = append(tmpl, FieldRef(*seg.Field))
			default:
				return nil, &ValidationError{Descriptor: s.Name,
					Reason: fmt.Sprintf("header %q segment %d sets neither literal nor field", header, i)}
			}
		}
		d.Auth.Headers[header] = tmpl
	}

	return d, nil
}
