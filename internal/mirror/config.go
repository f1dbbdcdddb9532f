package mirror

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	regexPrefix = "regex:"

	// Deliveries shorter than this are clamped up; a zero timeout would
	// cancel the outbound call before it starts.
	minTimeout = 1 * time.Second
)

// Options is the raw mirroring option surface as it arrives from flags,
// environment or a config file.
type Options struct {
	Base       string
	Path       string
	Match      string
	Methods    string
	JSONOnly   bool
	AddHeader  bool
	HeaderName string
	Timeout    time.Duration
	Async      bool
}

// Config is the compiled form of Options. It is immutable: a reload builds
// a fresh Config and swaps it in whole, so concurrent eligibility checks
// never observe a half-updated configuration or a pattern mid-compilation.
type Config struct {
	// Target is the fully joined mirror URL. Empty disables mirroring.
	Target string

	substring string
	pattern   *regexp.Regexp
	methods   map[string]struct{}

	JSONOnly   bool
	AddHeader  bool
	HeaderName string
	Timeout    time.Duration
	Async      bool
}

// Compile validates and normalizes opts. It never fails: an invalid match
// pattern degrades to match-all and an unusable base URL disables
// mirroring, both with a logged warning.
func Compile(opts Options) *Config {
	cfg := &Config{
		JSONOnly:   opts.JSONOnly,
		AddHeader:  opts.AddHeader,
		HeaderName: opts.HeaderName,
		Timeout:    opts.Timeout,
		Async:      opts.Async,
		methods:    parseMethods(opts.Methods),
	}

	if cfg.Timeout < minTimeout {
		cfg.Timeout = minTimeout
	}

	if base := strings.TrimSpace(opts.Base); base != "" {
		target, err := joinTarget(base, opts.Path)
		if err != nil {
			log.Warn().Err(err).Str("base", base).Msg("Unusable mirror base URL, mirroring disabled")
		} else {
			cfg.Target = target
		}
	}

	if match := opts.Match; strings.HasPrefix(match, regexPrefix) {
		pat := match[len(regexPrefix):]

		re, err := regexp.Compile(pat)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pat).Msg("Invalid regex in mirror match, matching all URLs")
		} else {
			cfg.pattern = re
			log.Info().Str("pattern", pat).Msg("Using regex match")
		}
	} else if match != "" {
		cfg.substring = match
		log.Info().Str("substring", match).Msg("Using substring match")
	}

	return cfg
}

// parseMethods splits a comma separated method list into an uppercased
// set. An empty result means every method is allowed.
func parseMethods(csv string) map[string]struct{} {
	methods := make(map[string]struct{})

	for _, m := range strings.Split(csv, ",") {
		if m = strings.TrimSpace(m); m != "" {
			methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	return methods
}

// joinTarget appends path to base with URL-join semantics: a relative path
// is appended below base, while a path carrying its own scheme/host
// replaces it.
func joinTarget(base, path string) (string, error) {
	if path == "" {
		path = "/"
	}

	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}

	return baseURL.ResolveReference(ref).String(), nil
}
