package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hierynomus/taipan"
	home "github.com/mitchellh/go-homedir"
	"github.com/mirrortap/mirrortap/internal/config"
	"github.com/mirrortap/mirrortap/internal/proxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version string
	Commit  string
	Date    string
)

var EnvPrefix = "MIRRORTAP"

func RootCommand(cfg *config.Config) *cobra.Command {
	var verbosity int

	cmd := &cobra.Command{
		Use:   "mirrortap",
		Short: "Runs Mirror Tap",
		Long: `
HTTP proxy that:
* sends requests to a main endpoint from which the response is returned
* POSTs a byte-exact copy of the body of matching requests to a mirror endpoint

Mirroring is best effort and never blocks or alters the primary traffic.
Mirror settings can be inspected and changed at runtime via GET/PUT/DELETE
on the admin endpoint.
`,
		Version: fmt.Sprintf("%s (Built on: %s, Commit: %s)", Version, Date, Commit),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch verbosity {
			case 0:
				// Nothing to do
			case 1:
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			case 2: //nolint:gomnd
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			default:
				zerolog.SetGlobalLevel(zerolog.TraceLevel)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			PrintUsage(cfg)
			if err := RunProxy(cfg); err != nil {
				return err
			}

			return nil
		},
	}

	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Print more verbose logging")

	cmd.Flags().StringP("listen", "l", ":8080", "Address to listen on and intercept traffic from")
	cmd.Flags().StringP("main", "m", "http://localhost:8888", "Main proxy target, its responses will be returned to the client")
	cmd.Flags().String("admin", "mirror", "Path on which mirror settings can be inspected/changed via GET, PUT and DELETE")
	cmd.Flags().String("admin-address", "", "Address on which the admin endpoint is made available. Leave empty to expose it on the address that is being intercepted")
	cmd.Flags().String("username", "", "Username to protect the admin endpoint with.")
	cmd.Flags().String("password", "", "Password to protect the admin endpoint with.")
	cmd.Flags().String("passwordFile", "", "Provide a file that contains username/password to protect the admin endpoint. Contains 1 username/password combination separated by ':'.")
	cmd.Flags().Int("max-connections", 512, "Maximum number of concurrently accepted connections.") //nolint:gomnd

	cmd.Flags().String("mirror-base", "", "Base URL to mirror matching request bodies to. Empty disables mirroring")
	cmd.Flags().String("mirror-path", "/", "Path at mirror-base to POST to")
	cmd.Flags().String("mirror-match", "", "Substring or 'regex:<pattern>' to select which request URLs to mirror. Empty matches all")
	cmd.Flags().String("mirror-methods", "POST,PUT,PATCH", "Comma-separated HTTP methods to mirror. Empty allows all methods")
	cmd.Flags().Bool("mirror-json-only", true, "Only mirror requests with a JSON Content-Type")
	cmd.Flags().Bool("mirror-add-header", true, "Add a correlation header to the mirrored request")
	cmd.Flags().String("mirror-header-name", "X-Mirror-Correlation-Id", "Correlation header name")
	cmd.Flags().Int("mirror-timeout", 5, "Timeout in seconds per mirror delivery, floored at 1.") //nolint:gomnd
	cmd.Flags().Bool("mirror-async", true, "Deliver mirror copies fire-and-forget instead of inline")
	cmd.Flags().Int("mirror-workers", 8, "Number of concurrent mirror deliveries in async mode.")                                    //nolint:gomnd
	cmd.Flags().Int("mirror-queue-size", 256, "Maximum amount of mirror deliveries queued; overflow is dropped.")                    //nolint:gomnd
	cmd.Flags().Bool("mirror-breaker", false, "Temporarily stop mirroring to a persistently failing target.")
	cmd.Flags().Int("retry-after", 1, "After 5 successive failures the mirror target is temporarily disabled, it will be retried after this many minutes.")

	return cmd
}

func RunProxy(cfg *config.Config) error {
	sigs := make(chan os.Signal, 1)
	done := make(chan bool, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	p := proxy.NewProxy(cfg)

	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Received signal, exiting")

		if err := p.Stop(); err != nil {
			panic(err)
		}

		done <- true
	}()

	if err := p.Start(context.Background()); err != nil {
		return err
	}

	<-done

	return nil
}

func Execute(ctx context.Context) {
	cfg := &config.Config{}
	cmd := RootCommand(cfg)

	homeFolder, err := home.Expand("~/.mirrortap")
	if err != nil {
		fmt.Printf("%s", err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	taipanConfig := &taipan.Config{
		DefaultConfigName:  "mirrortap",
		ConfigurationPaths: []string{".", homeFolder},
		EnvironmentPrefix:  EnvPrefix,
		AddConfigFlag:      true,
		ConfigObject:       cfg,
		PrefixCommands:     true,
	}

	t := taipan.New(taipanConfig)
	t.Inject(cmd)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Printf("🎃 %s\n", err)
		os.Exit(1)
	}
}

func PrintUsage(cfg *config.Config) {
	var adminText string
	if cfg.AdminListenAddress != "" {
		adminText = fmt.Sprintf("http://%s/%s", cfg.AdminListenAddress, cfg.AdminEndpoint)
	} else {
		adminText = fmt.Sprintf("http://%s/%s", cfg.ListenAddress, cfg.AdminEndpoint)
	}

	fmt.Printf("Inspect/change mirror settings via GET/PUT/DELETE at %s:\n", adminText)
	fmt.Printf("Status : curl %s\n", adminText)
	fmt.Printf("Update : curl -X PUT '%s?base=http://localhost:5678&match=api.example.com'\n", adminText)
	fmt.Printf("Disable: curl -X DELETE %s\n", adminText)
	fmt.Println()
}
