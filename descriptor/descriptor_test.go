package descriptor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func bearerDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "CustomApi",
		DisplayName: "My Custom API",
		Fields: []FieldSpec{
			{DisplayName: "API Key", Name: "apiKey", Kind: KindString, Default: "", Secret: true,
				Description: "Your API key for authentication"},
			{DisplayName: "Base URL", Name: "baseUrl", Kind: KindString, Default: ""},
		},
		Auth: AuthRule{
			Mode: ModeGeneric,
			Headers: map[string]Template{
				"Authorization": {Literal("Bearer "), FieldRef("apiKey")},
			},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(bearerDescriptor()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Descriptor)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty name",
			mutate: func(d *Descriptor) { d.Name = "  " },
			check:  isValidationError,
		},
		{
			name:   "padded name",
			mutate: func(d *Descriptor) { d.Name = " CustomApi" },
			check:  isValidationError,
		},
		{
			name:   "duplicate field",
			mutate: func(d *Descriptor) { d.Fields = append(d.Fields, d.Fields[0]) },
			check:  isValidationError,
		},
		{
			name:   "unnamed field",
			mutate: func(d *Descriptor) { d.Fields[1].Name = "" },
			check:  isValidationError,
		},
		{
			name:   "invalid kind",
			mutate: func(d *Descriptor) { d.Fields[1].Kind = "date" },
			check:  isValidationError,
		},
		{
			name:   "default does not match kind",
			mutate: func(d *Descriptor) { d.Fields[1].Default = true },
			check:  isValidationError,
		},
		{
			name:   "unsupported mode",
			mutate: func(d *Descriptor) { d.Auth.Mode = "oauth2" },
			check:  isValidationError,
		},
		{
			name: "invalid header name",
			mutate: func(d *Descriptor) {
				d.Auth.Headers["X Api Key"] = Template{FieldRef("apiKey")}
			},
			check: isValidationError,
		},
		{
			name: "empty template",
			mutate: func(d *Descriptor) {
				d.Auth.Headers["X-Empty"] = Template{}
			},
			check: isValidationError,
		},
		{
			name: "line break in literal",
			mutate: func(d *Descriptor) {
				d.Auth.Headers["Authorization"] = Template{Literal("Bearer\r\nX-Evil: 1 "), FieldRef("apiKey")}
			},
			check: isValidationError,
		},
		{
			name: "header names differing only by case",
			mutate: func(d *Descriptor) {
				d.Auth.Headers["authorization"] = Template{Literal("Token "), FieldRef("apiKey")}
			},
			check: func(t *testing.T, err error) {
				isValidationError(t, err)
				assert.Contains(t, err.Error(), `"authorization" clashes with "Authorization"`)
			},
		},
		{
			name:   "default with a line break",
			mutate: func(d *Descriptor) { d.Fields[1].Default = "https://a.example\nX-Evil: 1" },
			check:  isValidationError,
		},
		{
			name: "undeclared field reference",
			mutate: func(d *Descriptor) {
				d.Auth.Headers["Authorization"] = Template{Literal("Bearer "), FieldRef("token")}
			},
			check: func(t *testing.T, err error) {
				var malformed *MalformedTemplateError
				require.True(t, errors.As(err, &malformed), "got %v", err)
				assert.Equal(t, "CustomApi", malformed.Descriptor)
				assert.Equal(t, "Authorization", malformed.Header)
				assert.Equal(t, "token", malformed.Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := bearerDescriptor()
			tt.mutate(d)
			err := Validate(d)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func isValidationError(t *testing.T, err error) {
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

func TestRenderFields_ReturnsCopy(t *testing.T) {
	d := bearerDescriptor()

	fields := RenderFields(d)
	require.Len(t, fields, 2)
	assert.Equal(t, "apiKey", fields[0].Name)
	assert.Equal(t, "baseUrl", fields[1].Name)

	fields[0].Name = "changed"
	assert.Equal(t, "apiKey", d.Fields[0].Name)
}

func TestClone_IsDeep(t *testing.T) {
	d := bearerDescriptor()
	c := d.Clone()

	c.Fields[0].Secret = false
	c.Auth.Headers["Authorization"][0] = Literal("Token ")
	c.Auth.Headers["X-Extra"] = Template{Literal("x")}

	assert.True(t, d.Fields[0].Secret)
	assert.Equal(t, Literal("Bearer "), d.Auth.Headers["Authorization"][0])
	assert.Len(t, d.Auth.Headers, 1)
}

func TestTemplate_FieldsAndString(t *testing.T) {
	tmpl := Template{Literal("Bearer "), FieldRef("apiKey")}

	assert.Equal(t, []string{"apiKey"}, tmpl.Fields())
	assert.Equal(t, `"Bearer " + {apiKey}`, tmpl.String())
}

func TestKind_UnmarshalText(t *testing.T) {
	var k Kind
	assert.NoError(t, k.UnmarshalText([]byte("number")))
	assert.Equal(t, KindNumber, k)
	assert.Error(t, k.UnmarshalText([]byte("password")))
}

func TestDefaults(t *testing.T) {
	d := bearerDescriptor()
	d.Fields = append(d.Fields,
		FieldSpec{Name: "timeout", Kind: KindNumber, Default: 30},
		FieldSpec{Name: "verbose", Kind: KindBoolean},
	)

	values := Defaults(d)

	assert.Equal(t, Values{
		"apiKey":  "",
		"baseUrl": "",
		"timeout": float64(30),
		"verbose": false,
	}, values)
}

func TestCoerce(t *testing.T) {
	str := FieldSpec{Name: "s", Kind: KindString}
	num := FieldSpec{Name: "n", Kind: KindNumber}
	boolean := FieldSpec{Name: "b", Kind: KindBoolean}

	tests := []struct {
		field   FieldSpec
		raw     any
		want    any
		wantErr bool
	}{
		{str, "abc", "abc", false},
		{str, 12, nil, true},
		{str, nil, nil, true},
		{num, 12, float64(12), false},
		{num, int64(7), float64(7), false},
		{num, 1.5, 1.5, false},
		{num, " 2.25 ", 2.25, false},
		{num, "NaN", nil, true},
		{num, "twelve", nil, true},
		{num, true, nil, true},
		{boolean, true, true, false},
		{boolean, "false", false, false},
		{boolean, "maybe", nil, true},
		{boolean, 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.field.Kind, tt.raw), func(t *testing.T) {
			got, err := Coerce(tt.field, tt.raw)
			if tt.wantErr {
				var mismatch *KindMismatchError
				require.True(t, errors.As(err, &mismatch), "got %v", err)
				assert.Equal(t, tt.field.Kind, mismatch.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_RejectsLineBreaks(t *testing.T) {
	f := FieldSpec{Name: "apiKey", Kind: KindString}

	for _, raw := range []string{"abc\r\nX-Evil: 1", "abc\n", "\rabc"} {
		_, err := Coerce(f, raw)

		var invalid *InvalidValueError
		require.True(t, errors.As(err, &invalid), "got %v", err)
		assert.Equal(t, "apiKey", invalid.Field)
		assert.NotContains(t, err.Error(), "X-Evil")
	}
}

func TestKindMismatchError_DoesNotLeakValue(t *testing.T) {
	_, err := Coerce(FieldSpec{Name: "port", Kind: KindNumber}, "hunter2")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestValues_Set(t *testing.T) {
	d := bearerDescriptor()
	values := Defaults(d)

	require.NoError(t, values.Set(d, "apiKey", "secret123"))
	assert.Equal(t, "secret123", values["apiKey"])

	var unknown *UnknownFieldError
	assert.True(t, errors.As(values.Set(d, "token", "x"), &unknown))

	var mismatch *KindMismatchError
	assert.True(t, errors.As(values.Set(d, "baseUrl", 42), &mismatch))
	assert.Equal(t, "", values["baseUrl"])
}

func TestValues_StringHidesContent(t *testing.T) {
	values := Values{"apiKey": "secret123", "baseUrl": "https://api.example.com"}

	assert.Equal(t, "Values{apiKey, baseUrl}", values.String())
	assert.NotContains(t, fmt.Sprintf("%v", values), "secret123")
	assert.NotContains(t, fmt.Sprintf("%#v", values), "secret123")
}

func TestFieldViews_MasksSecrets(t *testing.T) {
	d := bearerDescriptor()
	values := Values{"apiKey": "secret123", "baseUrl": "https://api.example.com"}

	views := FieldViews(d, values)
	require.Len(t, views, 2)

	assert.Equal(t, Mask, views[0].Value)
	assert.True(t, views[0].Configured)
	assert.True(t, views[0].Secret)
	assert.Equal(t, "https://api.example.com", views[1].Value)

	unset := FieldViews(d, Defaults(d))
	assert.Equal(t, "", unset[0].Value)
	assert.False(t, unset[0].Configured)

	for _, v := range views {
		assert.NotContains(t, fmt.Sprintf("%+v", v), "secret123")
	}
}

func TestMaskedValues_String(t *testing.T) {
	d := bearerDescriptor()
	values := Values{"apiKey": "secret123", "baseUrl": "https://api.example.com", "extra": "x"}

	s := Masked(d, values).String()

	assert.Equal(t, "{apiKey=******** baseUrl=https://api.example.com extra=********}", s)
}

func TestMaskedValues_LogLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	d := bearerDescriptor()
	values := Values{"apiKey": "secret123", "baseUrl": "https://api.example.com"}

	logger.Info("credential updated", zap.Object("values", Masked(d, values)))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()["values"].(map[string]interface{})
	assert.Equal(t, Mask, fields["apiKey"])
	assert.Equal(t, "https://api.example.com", fields["baseUrl"])
	assert.NotContains(t, fmt.Sprint(logs.All()[0].ContextMap()), "secret123")
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("secret123")
	b := Fingerprint("secret123")
	c := Fingerprint("secret124")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("b2:")+12)
	assert.NotContains(t, a, "secret")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue("abc"))
	assert.Equal(t, "30", FormatValue(float64(30)))
	assert.Equal(t, "0.5", FormatValue(0.5))
	assert.Equal(t, "true", FormatValue(true))
}
