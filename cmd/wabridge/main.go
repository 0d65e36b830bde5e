package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgiordano/wabridge/pkg/authn"
	"github.com/mgiordano/wabridge/pkg/client"
	"github.com/mgiordano/wabridge/pkg/config"
	"github.com/mgiordano/wabridge/pkg/events"
	"github.com/mgiordano/wabridge/pkg/page"
	"github.com/mgiordano/wabridge/pkg/page/rodpage"
	"github.com/mgiordano/wabridge/pkg/session"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configPath   string
	clientID     string
	authMode     string
	pairingPhone string
	headful      bool
	browserURL   string
	metricsAddr  string
	showVersion  bool
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to yaml config file")
	flag.StringVar(&clientID, "client-id", "", "client identifier (overrides config)")
	flag.StringVar(&authMode, "auth", "local", "auth strategy: local, store, none")
	flag.StringVar(&pairingPhone, "pair-phone", "", "link via pairing code for this phone number instead of QR")
	flag.BoolVar(&headful, "headful", false, "run the browser with a visible window")
	flag.StringVar(&browserURL, "browser-url", "", "connect to an existing browser instead of launching one")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9155)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("wabridge %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wabridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := config.Default()
	if configPath != "" {
		var err error
		opts, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	if clientID != "" {
		opts.ClientID = clientID
	}
	if headful {
		opts.Headless = false
	}
	if browserURL != "" {
		opts.BrowserURL = browserURL
	}

	strategy, err := pickStrategy(authMode, opts)
	if err != nil {
		return err
	}

	factory := func(ctx context.Context, userDataDir string) (page.Page, error) {
		return rodpage.New(ctx, rodpage.Config{
			ControlURL:  opts.BrowserURL,
			Headless:    opts.Headless,
			UserAgent:   opts.UserAgent,
			UserDataDir: userDataDir,
		})
	}

	c, err := client.New(opts, strategy, factory)
	if err != nil {
		return err
	}
	defer c.Close()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	printEvents(c)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Initialize(ctx); err != nil {
		return err
	}

	if pairingPhone != "" {
		code, err := c.RequestPairingCode(ctx, pairingPhone, true)
		if err != nil {
			return err
		}
		fmt.Printf("pairing code: %s\n", code)
	}

	<-ctx.Done()
	fmt.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return c.Destroy(shutdownCtx)
}

func pickStrategy(mode string, opts config.Options) (authn.Strategy, error) {
	switch mode {
	case "local":
		return authn.NewLocalAuth(opts.DataPath), nil
	case "store":
		return authn.NewStoreAuth(session.NewFileStore(opts.DataPath)), nil
	case "none":
		return authn.NewNoAuth(), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

func printEvents(c *client.Client) {
	c.On(events.QR, func(ev events.Event) {
		if len(ev.Args) > 0 {
			fmt.Printf("scan to link:\n%v\n", ev.Args[0])
		}
	})
	c.On(events.LoadingScreen, func(ev events.Event) {
		if len(ev.Args) > 0 {
			fmt.Printf("syncing: %v%%\n", ev.Args[0])
		}
	})
	c.On(events.Authenticated, func(events.Event) {
		fmt.Println("authenticated")
	})
	c.On(events.Ready, func(events.Event) {
		if info := c.Info(); info != nil {
			fmt.Printf("ready as %s (%s)\n", info.Pushname, info.WID)
		} else {
			fmt.Println("ready")
		}
	})
	c.On(events.AuthFailure, func(ev events.Event) {
		fmt.Printf("auth failure: %v\n", ev.Args)
	})
	c.On(events.Disconnected, func(ev events.Event) {
		fmt.Printf("disconnected: %v\n", ev.Args)
	})
	c.On(events.Message, func(ev events.Event) {
		fmt.Printf("message: %v\n", summarize(ev.Args))
	})
}

func summarize(args []any) string {
	if len(args) == 0 {
		return ""
	}
	return fmt.Sprintf("%+v", args[0])
}
