package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/mirrortap/mirrortap/internal/mirror"
	"github.com/rs/zerolog/log"
)

// TapHandler proxies every request to the main target and offers it to the
// mirror tap first. The tap runs before forwarding and can never fail the
// exchange; the response the client sees comes from the main target alone.
func TapHandler(tap *mirror.Tap, mainURL *url.URL) func(res http.ResponseWriter, req *http.Request) {
	proxyTo := httputil.NewSingleHostReverseProxy(mainURL)

	return func(res http.ResponseWriter, req *http.Request) {
		body := bufferRequest(req)

		tap.OnRequest(&mirror.Descriptor{
			Method: req.Method,
			URL:    fullURL(req),
			Header: req.Header,
			Body:   body,
		})

		// Update the headers to allow for SSL redirection
		req.URL.Host = mainURL.Host
		req.URL.Scheme = mainURL.Scheme
		req.Host = mainURL.Host

		proxyTo.ServeHTTP(res, req)
	}
}

// fullURL reconstructs the URL the client requested, as seen on the wire.
func fullURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + req.Host + req.RequestURI
}

func bufferRequest(req *http.Request) []byte {
	// Read body to buffer
	body, err := io.ReadAll(req.Body)
	if err != nil {
		log.Error().Err(err).Msg("Error reading request body")
	}

	// Restore the body so it can still be sent to the main target
	req.Body = io.NopCloser(bytes.NewBuffer(body))

	return body
}
