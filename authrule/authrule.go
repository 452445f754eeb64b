// Package authrule turns stored credential values into request headers.
//
// Missing values are handled strictly: a referenced field that is absent or holds
// an empty string fails with *descriptor.MissingFieldError instead of producing a
// half-filled header such as "Bearer ". Every caller gets this policy.
package authrule

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/status-im/credential-host/descriptor"
)

// Apply renders every header template in rule against values. It does not
// modify rule or values.
func Apply(rule descriptor.AuthRule, values descriptor.Values) (map[string]string, error) {
	if rule.Mode != descriptor.ModeGeneric {
		return nil, fmt.Errorf("unsupported authentication type %q", rule.Mode)
	}

	names := make([]string, 0, len(rule.Headers))
	for name := range rule.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make(map[string]string, len(names))
	for _, name := range names {
		var b strings.Builder
		for _, seg := range rule.Headers[name] {
			switch s := seg.(type) {
			case descriptor.Literal:
				b.WriteString(string(s))
			case descriptor.FieldRef:
				val, ok := values[string(s)]
				if !ok || descriptor.IsEmpty(val) {
					return nil, &descriptor.MissingFieldError{Header: name, Field: string(s)}
				}
				formatted := descriptor.FormatValue(val)
				if descriptor.HasLineBreak(formatted) {
					return nil, &descriptor.InvalidValueError{Field: string(s), Reason: "value contains a line break"}
				}
				b.WriteString(formatted)
			}
		}
		headers[name] = b.String()
	}

	return headers, nil
}

// ApplyDescriptor is Apply with the descriptor name filled into any MissingFieldError
func ApplyDescriptor(d *descriptor.Descriptor, values descriptor.Values) (map[string]string, error) {
	headers, err := Apply(d.Auth, values)
	if err != nil {
		var missing *descriptor.MissingFieldError
		if errors.As(err, &missing) {
			missing.Descriptor = d.Name
		}
		return nil, err
	}
	return headers, nil
}

// Inject sets headers on req. A header the request already declares is replaced.
func Inject(req *http.Request, headers map[string]string) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		req.Header.Set(name, headers[name])
	}
}
