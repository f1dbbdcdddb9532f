package mirror

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func jsonRequest(method, url string) *Descriptor {
	return &Descriptor{
		Method: method,
		URL:    url,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"a":1}`),
	}
}

func TestShouldMirrorRejectsDisallowedMethod(t *testing.T) {
	cfg := Compile(Options{Methods: "POST,PUT,PATCH"})

	assert.False(t, ShouldMirror(jsonRequest("GET", "http://api.example.com/"), cfg))
	assert.False(t, ShouldMirror(jsonRequest("DELETE", "http://api.example.com/"), cfg))
	assert.True(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/"), cfg))
}

func TestShouldMirrorMethodIsCaseInsensitive(t *testing.T) {
	cfg := Compile(Options{Methods: "post"})

	assert.True(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/"), cfg))
	assert.True(t, ShouldMirror(jsonRequest("post", "http://api.example.com/"), cfg))
}

func TestShouldMirrorJSONOnlyRequiresContentType(t *testing.T) {
	cfg := Compile(Options{JSONOnly: true})

	noHeader := &Descriptor{Method: "POST", URL: "http://api.example.com/"}
	assert.False(t, ShouldMirror(noHeader, cfg))

	text := &Descriptor{
		Method: "POST",
		URL:    "http://api.example.com/",
		Header: http.Header{"Content-Type": []string{"text/plain"}},
	}
	assert.False(t, ShouldMirror(text, cfg))

	// Containment check, case-insensitive: parameters and vendor types pass.
	vendor := &Descriptor{
		Method: "POST",
		URL:    "http://api.example.com/",
		Header: http.Header{"Content-Type": []string{"application/vnd.acme+JSON; charset=utf-8"}},
	}
	assert.True(t, ShouldMirror(vendor, cfg))
}

func TestShouldMirrorSubstringMatch(t *testing.T) {
	cfg := Compile(Options{Match: "api.example.com"})

	assert.True(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/v1/x"), cfg))
	assert.False(t, ShouldMirror(jsonRequest("POST", "http://other.com/v1/x"), cfg))
}

func TestShouldMirrorSubstringIsCaseSensitive(t *testing.T) {
	cfg := Compile(Options{Match: "API.example.com"})

	assert.False(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/v1/x"), cfg))
}

func TestShouldMirrorRegexSearchSemantics(t *testing.T) {
	cfg := Compile(Options{Match: `regex:^https?://api\.example\.com(/|$)`})

	assert.True(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/"), cfg))
	assert.True(t, ShouldMirror(jsonRequest("POST", "https://api.example.com"), cfg))
	assert.False(t, ShouldMirror(jsonRequest("POST", "http://notapi.example.com/"), cfg))

	// Anywhere in the URL qualifies, not just a full match.
	partial := Compile(Options{Match: "regex:/v1/"})
	assert.True(t, ShouldMirror(jsonRequest("POST", "http://api.example.com/v1/x"), partial))
}

func TestShouldMirrorAllWhenUnconfigured(t *testing.T) {
	cfg := Compile(Options{})

	assert.True(t, ShouldMirror(&Descriptor{Method: "GET", URL: "http://anything/"}, cfg))
	assert.True(t, ShouldMirror(&Descriptor{Method: "OPTIONS", URL: "gopher://weird"}, cfg))
}

func TestShouldMirrorFilterOrder(t *testing.T) {
	// Method filter rejects before the URL is ever inspected.
	cfg := Compile(Options{Methods: "POST", Match: "api.example.com"})

	assert.False(t, ShouldMirror(jsonRequest("GET", "http://api.example.com/"), cfg))
}
