// Command kismet-leds drives status LEDs from the Kismet event bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/config"
	"github.com/sweeney/kismet-leds/internal/credentials"
	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/gpio"
	"github.com/sweeney/kismet-leds/internal/leds"
	"github.com/sweeney/kismet-leds/internal/mqtt"
	"github.com/sweeney/kismet-leds/internal/status"
	"github.com/sweeney/kismet-leds/internal/supervisor"
	"github.com/sweeney/kismet-leds/internal/transport"
	"github.com/sweeney/kismet-leds/internal/web"
)

const defaultEnvFile = "/run/pi-helper.env"

// options are the parsed command-line flags.
type options struct {
	configPath string
	connect    string
	user       string
	password   string
	apiKey     string
	skipTest   bool
	noGPIO     bool
	httpAddr   string
	broker     string
	heartbeat  time.Duration
	envFile    string

	// set records which flags were given, so only those override the file.
	set map[string]bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("kismet-leds", pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.connect, "connect", "", "remote Kismet server as host:port")
	fs.StringVar(&o.user, "user", "", "Kismet username")
	fs.StringVar(&o.password, "password", "", "Kismet password")
	fs.StringVar(&o.apiKey, "apikey", "", "Kismet API key")
	fs.BoolVar(&o.skipTest, "skip-test", false, "skip the startup connection test")
	fs.BoolVar(&o.noGPIO, "no-gpio", false, "log LED changes instead of driving GPIO")
	fs.StringVar(&o.httpAddr, "http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	fs.DurationVar(&o.heartbeat, "heartbeat", config.DefaultHeartbeat, "MQTT heartbeat interval (0 to disable)")
	fs.StringVar(&o.envFile, "env-file", defaultEnvFile, "pi-helper environment file")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(opts options) (config.Config, error) {
	f, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := f.Resolve()
	if err != nil {
		return config.Config{}, err
	}
	if opts.set["http"] {
		cfg.HTTPAddr = opts.httpAddr
	}
	if opts.set["broker"] {
		cfg.Broker = opts.broker
	}
	if opts.set["heartbeat"] {
		cfg.Heartbeat = opts.heartbeat
	}
	return cfg, nil
}

// loadEnvFile loads the pi-helper env file without overriding variables
// that are already set. A missing file is normal off the Pi.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		log.Printf("env: %v", err)
	}
}

func run(opts options) error {
	loadEnvFile(opts.envFile)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds, err := credentials.Resolve(ctx, credentials.Options{
		Connect:    opts.connect,
		User:       opts.user,
		Password:   opts.password,
		APIKey:     opts.apiKey,
		SessionDB:  cfg.SessionDB,
		APIKeyName: cfg.APIKeyName,
		HTTPDConf:  cfg.HTTPDConf,
		KismetEtc:  os.Getenv("KISMET_ETC"),
	})
	if err != nil {
		return err
	}
	uri := creds.URI(cfg.Endpoint)
	log.Printf("kismet server: %s", creds)

	dialer := &transport.WebsocketDialer{}
	if !opts.skipTest {
		if err := supervisor.Probe(ctx, dialer, uri, cfg.Timeout); err != nil {
			return fmt.Errorf("connection test failed (%s): %w", transport.Hint(err), err)
		}
		log.Printf("connection test passed")
	}

	// Initialize LED output
	out, chip, err := openOutput(cfg, opts.noGPIO)
	if err != nil {
		return err
	}
	defer out.Close()

	engine := leds.NewEngine(out, clock.Real{}, cfg.Channels()...)
	defer engine.Close()
	dispatcher := leds.NewDispatcher(engine, cfg.Policy)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(clock.Real{}, status.Config{
		Server:      creds.String(),
		Endpoint:    cfg.Endpoint,
		Chip:        chip,
		Lines:       cfg.Lines,
		TimeoutMs:   cfg.Timeout.Milliseconds(),
		ReconnectMs: cfg.ReconnectDelay.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		PacketBlink: cfg.Policy.PacketBlink,
		ErrorBlink:  cfg.Policy.ErrorBlink,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})
	tracker.SetLEDSource(engine)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	reporters := supervisor.Reporters{tracker}

	// Initialize MQTT
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.Broker,
			ClientID:    cfg.ClientID,
			TopicPrefix: cfg.TopicPrefix,
			BufferSize:  cfg.BufferEvents,
		})
		defer p.Close()
		publisher, mqttStatus = p, p
		reporters = append(reporters, mqtt.NewMirror(p, clock.Real{}))

		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	sup := supervisor.New(supervisor.Config{
		URI:            uri,
		Timeout:        cfg.Timeout,
		ReconnectDelay: cfg.ReconnectDelay,
	}, dialer, clock.Real{}, &handler{dispatcher: dispatcher, tracker: tracker}, reporters)

	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()

	log.Printf("started: endpoint=%s timeout=%v reconnect=%v broker=%q heartbeat=%v",
		cfg.Endpoint, cfg.Timeout, cfg.ReconnectDelay, cfg.Broker, cfg.Heartbeat)

	var hbTick <-chan time.Time
	if publisher != nil && cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		hbTick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, mqttStatus, tracker, time.Now, hbTick, sigCh, supDone)
	cancel()
	return err
}

// openOutput binds the configured GPIO lines. Failing to bind is fatal;
// --no-gpio deliberately logs LED changes instead.
func openOutput(cfg config.Config, noGPIO bool) (gpio.Output, string, error) {
	if noGPIO {
		log.Printf("gpio: disabled, logging LED changes")
		return gpio.NewLogOutput(nil, cfg.Channels()...), "", nil
	}
	out, err := gpio.NewRealOutput(cfg.Chip, cfg.Lines)
	if err != nil {
		return nil, "", fmt.Errorf("init gpio: %w (use --no-gpio to run without LEDs)", err)
	}
	return out, cfg.Chip, nil
}

// handler feeds the LED dispatcher and the status tracker from the
// supervisor goroutine.
type handler struct {
	dispatcher *leds.Dispatcher
	tracker    *status.Tracker
}

func (h *handler) ConnectionAlive() { h.dispatcher.ConnectionAlive() }
func (h *handler) ConnectionLost()  { h.dispatcher.ConnectionLost() }

func (h *handler) HandleSignals(signals []eventbus.Signal) {
	h.dispatcher.HandleSignals(signals)
	h.tracker.Observe(signals)
}

// runLoop waits for a signal or for the supervisor to stop, publishing
// heartbeats in between. publisher may be nil when MQTT is disabled.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal, supDone <-chan error) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case err := <-supDone:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("supervisor: %w", err)

		case t := <-heartbeat:
			if publisher == nil {
				continue
			}
			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: state=%s frames=%d uptime=%v",
					snap.State, snap.Counts.Frames, snap.Uptime().Truncate(time.Second))
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
