package proxy

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// adminHandler exposes the mirror settings at runtime: GET shows the
// current configuration and per-target delivery counters, PUT updates any
// of the mirror options and installs the result atomically, DELETE turns
// mirroring off.
func (p *Proxy) adminHandler(res http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		p.writeStatus(res)
	case http.MethodPut:
		if err := p.updateOptions(req); err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
		}
	case http.MethodDelete:
		p.Lock()
		p.options.Base = ""
		p.tap.Reload(p.options)
		p.Unlock()
	default:
		http.Error(res, "Only GET, PUT and DELETE are supported.", http.StatusMethodNotAllowed)
	}
}

func (p *Proxy) writeStatus(res http.ResponseWriter) {
	p.Lock()
	options := p.options
	p.Unlock()

	if options.Base == "" {
		fmt.Fprintf(res, "mirroring: disabled\n")
	} else {
		fmt.Fprintf(res, "mirroring: %s (path: %s, match: %q, methods: %s, json-only: %t, async: %t, timeout: %s)\n",
			options.Base, options.Path, options.Match, options.Methods, options.JSONOnly, options.Async, options.Timeout)
	}

	for _, target := range p.tap.Statuses() {
		fmt.Fprintf(res, "%s: %s (delivered: %d, failed: %d, dropped: %d, last status: %d)\n",
			target.URL, target.State, target.Delivered, target.Failed, target.Dropped, target.LastStatus)
	}
}

func (p *Proxy) updateOptions(req *http.Request) error {
	if err := req.ParseForm(); err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()

	options := p.options

	for key, values := range req.Form {
		value := values[len(values)-1]

		switch key {
		case "base":
			options.Base = value
		case "path":
			options.Path = value
		case "match":
			options.Match = value
		case "methods":
			options.Methods = value
		case "header-name":
			options.HeaderName = value
		case "json-only", "add-header", "async":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean for %q: %q", key, value)
			}

			switch key {
			case "json-only":
				options.JSONOnly = b
			case "add-header":
				options.AddHeader = b
			case "async":
				options.Async = b
			}
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %q: %q", key, value)
			}

			options.Timeout = d
		default:
			return fmt.Errorf("unknown mirror option: %q", key)
		}
	}

	p.options = options
	p.tap.Reload(options)

	return nil
}
