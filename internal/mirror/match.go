package mirror

import (
	"net/http"
	"strings"
)

// Descriptor is a read-only view of an intercepted request, as handed over
// by the host proxy. It is borrowed: nothing in this package mutates it or
// holds on to it past the hook invocation.
type Descriptor struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// ShouldMirror decides eligibility of a request under cfg. It is a pure
// predicate; the checks are ordered cheapest first and short-circuit.
func ShouldMirror(d *Descriptor, cfg *Config) bool {
	if len(cfg.methods) > 0 {
		if _, ok := cfg.methods[strings.ToUpper(d.Method)]; !ok {
			return false
		}
	}

	if cfg.JSONOnly {
		ctype := strings.ToLower(d.Header.Get("Content-Type"))
		if !strings.Contains(ctype, "json") {
			return false
		}
	}

	switch {
	case cfg.pattern != nil:
		// Search semantics: a match anywhere in the URL qualifies.
		return cfg.pattern.MatchString(d.URL)
	case cfg.substring != "":
		return strings.Contains(d.URL, cfg.substring)
	default:
		// No match spec configured mirrors everything that passed the
		// method and content-type filters.
		return true
	}
}
