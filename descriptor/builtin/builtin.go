// Package builtin ships the credential types every host registers at startup.
package builtin

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/status-im/credential-host/descriptor"
)

//go:embed *.credentials.yaml
var files embed.FS

// CustomAPIName is the name of the generic bearer-token credential type
const CustomAPIName = "CustomApi"

// FS exposes the embedded descriptor files
func FS() fs.FS {
	return files
}

// Descriptors decodes every embedded descriptor, sorted by file name
func Descriptors() ([]*descriptor.Descriptor, error) {
	names, err := fs.Glob(files, "*.credentials.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]*descriptor.Descriptor, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading builtin %s: %w", name, err)
		}
		d, err := descriptor.Decode(data, descriptor.FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("decoding builtin %s: %w", name, err)
		}
		out = append(out, d)
	}
	return out, nil
}
