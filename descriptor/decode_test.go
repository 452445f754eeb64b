package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDescriptor = `
name: CustomApi
displayName: My Custom API
properties:
  - displayName: API Key
    name: apiKey
    type: string
    default: ""
    secret: true
  - displayName: Retries
    name: retries
    type: number
    default: 3
authenticate:
  type: generic
  headers:
    Authorization:
      - literal: "Bearer "
      - field: apiKey
`

const jsonDescriptor = `{
  "name": "CustomApi",
  "displayName": "My Custom API",
  "properties": [
    {"displayName": "API Key", "name": "apiKey", "type": "string", "default": "", "secret": true},
    {"displayName": "Retries", "name": "retries", "type": "number", "default": 3}
  ],
  "authenticate": {
    "type": "generic",
    "headers": {"Authorization": [{"literal": "Bearer "}, {"field": "apiKey"}]}
  }
}`

const tomlDescriptor = `
name = "CustomApi"
displayName = "My Custom API"

[[properties]]
displayName = "API Key"
name = "apiKey"
type = "string"
default = ""
secret = true

[[properties]]
displayName = "Retries"
name = "retries"
type = "number"
default = 3

[authenticate]
type = "generic"

[[authenticate.headers.Authorization]]
literal = "Bearer "

[[authenticate.headers.Authorization]]
field = "apiKey"
`

func TestDecode_AllFormats(t *testing.T) {
	inputs := map[Format]string{
		FormatYAML: yamlDescriptor,
		FormatJSON: jsonDescriptor,
		FormatTOML: tomlDescriptor,
	}

	for format, input := range inputs {
		t.Run(string(format), func(t *testing.T) {
			d, err := Decode([]byte(input), format)
			require.NoError(t, err)
			require.NoError(t, Validate(d))

			assert.Equal(t, "CustomApi", d.Name)
			require.Len(t, d.Fields, 2)
			assert.True(t, d.Fields[0].Secret)
			assert.Equal(t, KindNumber, d.Fields[1].Kind)
			assert.Equal(t, Values{"apiKey": "", "retries": float64(3)}, Defaults(d))
			assert.Equal(t, Template{Literal("Bearer "), FieldRef("apiKey")}, d.Auth.Headers["Authorization"])
		})
	}
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	input := `
name: Bad
properties:
  - name: apiKey
    type: password
authenticate:
  type: generic
`
	_, err := Decode([]byte(input), FormatYAML)
	assert.Error(t, err)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	input := `
name: Bad
propertys: []
authenticate:
  type: generic
`
	_, err := Decode([]byte(input), FormatYAML)
	assert.Error(t, err)
}

func TestDecode_SegmentMustSetExactlyOne(t *testing.T) {
	both := `
name: Bad
properties:
  - name: apiKey
    type: string
authenticate:
  type: generic
  headers:
    Authorization:
      - literal: "Bearer "
        field: apiKey
`
	neither := `
name: Bad
authenticate:
  type: generic
  headers:
    Authorization:
      - {}
`
	for _, input := range []string{both, neither} {
		_, err := Decode([]byte(input), FormatYAML)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "got %v", err)
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	_, err := Decode([]byte("{}"), Format("xml"))
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		ok     bool
	}{
		{"/ext/CustomApi.credentials.yaml", FormatYAML, true},
		{"CustomApi.credentials.yml", FormatYAML, true},
		{"CustomApi.credentials.JSON", FormatJSON, true},
		{"CustomApi.credentials.toml", FormatTOML, true},
		{"CustomApi.yaml", "", false},
		{"CustomApi.credentials.ts", "", false},
		{"CustomApi.node.json", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, ok := FormatFromPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestTypeNameFromPath(t *testing.T) {
	assert.Equal(t, "CustomApi", TypeNameFromPath("/ext/CustomApi.credentials.yaml"))
}
