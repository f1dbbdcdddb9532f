package mirror

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an owned copy of everything a delivery needs. It holds no
// reference to the original request or the live Config, so an asynchronous
// delivery can outlive both.
type Snapshot struct {
	Target  string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// Capture builds a Snapshot for an eligible request, or returns nil when
// there is nothing to mirror: no target configured, or an empty body. An
// empty body is never mirrored, even when every filter passed.
func Capture(d *Descriptor, cfg *Config) *Snapshot {
	if cfg.Target == "" || len(d.Body) == 0 {
		return nil
	}

	headers := make(map[string]string, 2)

	// Only Content-Type crosses over. Forwarding the remaining headers
	// would leak credentials and cookies to the mirror target.
	if ctype := d.Header.Get("Content-Type"); ctype != "" {
		headers["Content-Type"] = ctype
	}

	if cfg.AddHeader {
		headers[cfg.HeaderName] = uuid.NewString()
	}

	body := make([]byte, len(d.Body))
	copy(body, d.Body)

	return &Snapshot{
		Target:  cfg.Target,
		Body:    body,
		Headers: headers,
		Timeout: cfg.Timeout,
	}
}
