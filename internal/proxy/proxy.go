package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mirrortap/mirrortap/internal/config"
	"github.com/mirrortap/mirrortap/internal/mirror"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

// Proxy passes all traffic through to the main target unchanged and hands
// every intercepted request to the mirror tap on the way in. Mirroring
// being enabled, misconfigured or failing is invisible to clients.
type Proxy struct {
	sync.Mutex

	cfg        *config.Config
	options    mirror.Options
	tap        *mirror.Tap
	dispatcher *mirror.Dispatcher

	server      *http.Server
	adminServer *http.Server
	addr        net.Addr
}

func NewProxy(cfg *config.Config) *Proxy {
	dispatcher := mirror.NewDispatcher(mirror.DispatcherSettings{
		Workers:    cfg.MirrorWorkers,
		QueueSize:  cfg.MirrorQueueSize,
		UseBreaker: cfg.MirrorBreaker,
		RetryAfter: time.Duration(cfg.RetryAfter) * time.Minute,
	})

	options := mirrorOptions(cfg)

	return &Proxy{
		cfg:        cfg,
		options:    options,
		tap:        mirror.NewTap(options, dispatcher),
		dispatcher: dispatcher,
	}
}

func mirrorOptions(cfg *config.Config) mirror.Options {
	return mirror.Options{
		Base:       cfg.MirrorBase,
		Path:       cfg.MirrorPath,
		Match:      cfg.MirrorMatch,
		Methods:    cfg.MirrorMethods,
		JSONOnly:   cfg.MirrorJSONOnly,
		AddHeader:  cfg.MirrorAddHeader,
		HeaderName: cfg.MirrorHeaderName,
		Timeout:    time.Duration(cfg.MirrorTimeout) * time.Second,
		Async:      cfg.MirrorAsync,
	}
}

// Start binds the listeners and begins serving. It returns once the proxy
// is accepting connections.
func (p *Proxy) Start(ctx context.Context) error {
	mainURL, err := url.Parse(p.cfg.MainProxyTarget)
	if err != nil {
		return fmt.Errorf("invalid main proxy target %q: %w", p.cfg.MainProxyTarget, err)
	}

	mirrorMux := http.NewServeMux()

	var adminMux *http.ServeMux

	if p.cfg.AdminListenAddress != "" {
		adminMux = http.NewServeMux()
	} else {
		adminMux = mirrorMux
	}

	adminHandler := p.adminHandler

	if p.cfg.PasswordFile != "" {
		username, password, err := parseUsernamePassword(p.cfg.PasswordFile)
		if err != nil {
			return err
		}

		adminHandler = BasicAuth(adminHandler, username, password, "Please provide username and password for changing mirror settings")
	} else if p.cfg.Username != "" {
		adminHandler = BasicAuth(adminHandler, p.cfg.Username, p.cfg.Password, "Please provide username and password for changing mirror settings")
	}

	adminMux.HandleFunc("/"+p.cfg.AdminEndpoint, adminHandler)
	mirrorMux.HandleFunc("/", TapHandler(p.tap, mainURL))

	listener, err := net.Listen("tcp", p.cfg.ListenAddress)
	if err != nil {
		return err
	}

	listener = netutil.LimitListener(listener, p.cfg.MaxConnections)
	p.addr = listener.Addr()

	p.server = &http.Server{Handler: mirrorMux}

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Proxy server stopped")
		}
	}()

	log.Info().Str("listen", p.cfg.ListenAddress).Str("main", p.cfg.MainProxyTarget).Msg("Proxy started")

	if p.cfg.AdminListenAddress != "" {
		adminListener, err := net.Listen("tcp", p.cfg.AdminListenAddress)
		if err != nil {
			return err
		}

		p.adminServer = &http.Server{Handler: adminMux}

		go func() {
			if err := p.adminServer.Serve(adminListener); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Admin server stopped")
			}
		}()
	}

	return nil
}

// Addr returns the address the proxy is accepting connections on. Valid
// after Start.
func (p *Proxy) Addr() string {
	if p.addr == nil {
		return ""
	}

	return p.addr.String()
}

// Stop shuts the listeners down and waits for queued mirror deliveries.
func (p *Proxy) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.adminServer != nil {
		if err := p.adminServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	p.dispatcher.Stop()

	return nil
}

func parseUsernamePassword(passwordFile string) (string, string, error) {
	data, err := os.ReadFile(passwordFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to load password file")
	}

	split := strings.SplitN(strings.TrimSpace(string(data)), ":", 2) //nolint:gomnd
	if len(split) != 2 {                                             //nolint:gomnd
		return "", "", fmt.Errorf("failed to parse username/password. Expected username/password separated by ':'")
	}

	return split[0], split[1], nil
}
