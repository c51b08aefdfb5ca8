package coreerrors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string // substrings that must appear
		gone []string // substrings that must not appear
	}{
		{
			name: "email",
			in:   "failed to notify jane.doe@example.com about the run",
			want: []string{"[redacted-email]"},
			gone: []string{"jane.doe@example.com"},
		},
		{
			name: "ipv4",
			in:   "connection refused by 10.0.0.5:443",
			want: []string{"[redacted-ip]"},
			gone: []string{"10.0.0.5"},
		},
		{
			name: "unix path",
			in:   "could not read /home/alice/secrets/keys.json",
			want: []string{"[redacted-path]"},
			gone: []string{"/home/alice"},
		},
		{
			name: "phone",
			in:   "callback number +1 415-555-0132 is unreachable",
			want: []string{"[redacted-phone]"},
			gone: []string{"415-555-0132"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(tc.in)
			for _, w := range tc.want {
				assert.Contains(t, got, w)
			}
			for _, g := range tc.gone {
				assert.False(t, strings.Contains(got, g), "sanitized output still contains %q: %q", g, got)
			}
		})
	}
}

func TestPublicMessageNeverEmpty(t *testing.T) {
	for _, k := range []Type{TypeRateLimited, TypeTimeout, TypeAgentParse, TypeAuth, TypeInternal, Type("unknown-kind")} {
		assert.NotEmpty(t, PublicMessage(k))
	}
}
