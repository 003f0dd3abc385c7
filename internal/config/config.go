// Package config loads the optional YAML configuration file and resolves
// it, once, into an immutable Config with every default applied.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/kismet-leds/internal/gpio"
	"github.com/sweeney/kismet-leds/internal/leds"
	"github.com/sweeney/kismet-leds/internal/supervisor"
)

// Defaults for values that can be left out of the file.
const (
	DefaultEndpoint     = "/eventbus/events.ws"
	DefaultSessionDB    = "~/.kismet/session.db"
	DefaultAPIKeyName   = "external plugin"
	DefaultHTTPDConf    = "~/.kismet/kismet_httpd.conf"
	DefaultHTTPAddr     = ":8080"
	DefaultHeartbeat    = 15 * time.Minute
	DefaultTopicPrefix  = "kismet-leds"
	DefaultMQTTClientID = "kismet-leds"
	DefaultBufferEvents = 64
)

// File mirrors the YAML document. Pointer fields distinguish "absent"
// from "zero": only absent values take a default.
type File struct {
	GPIO     GPIOFile     `yaml:"gpio"`
	Features FeaturesFile `yaml:"features"`
	Timing   TimingFile   `yaml:"timing"`
	Kismet   KismetFile   `yaml:"kismet"`
	Status   StatusFile   `yaml:"status"`
	MQTT     MQTTFile     `yaml:"mqtt"`
}

// GPIOFile selects the chip and line offsets.
type GPIOFile struct {
	Chip *string `yaml:"chip"`
	// Lines, when present, lists the LEDs in use; an LED missing from
	// the section is not driven. When absent every LED uses its default.
	Lines *LinesFile `yaml:"lines"`
}

// LinesFile holds one line offset per LED.
type LinesFile struct {
	WS   *int `yaml:"ws"`
	GPS  *int `yaml:"gps"`
	Devs *int `yaml:"devs"`
}

// FeaturesFile toggles optional LED behaviour.
type FeaturesFile struct {
	PacketBlink *bool `yaml:"packet_blink"`
	ErrorBlink  *bool `yaml:"error_blink"`
}

// TimingFile holds every duration. Values are duration strings such as
// "500ms"; a negative pulse keeps the LED on.
type TimingFile struct {
	Fix3D          *time.Duration `yaml:"fix3d"`
	Fix2D          *time.Duration `yaml:"fix2d"`
	DeviceFound    *time.Duration `yaml:"device_found"`
	PacketPulse    *time.Duration `yaml:"packet_pulse"`
	ErrorInterval  *time.Duration `yaml:"error_interval"`
	Timeout        *time.Duration `yaml:"timeout"`
	ReconnectDelay *time.Duration `yaml:"reconnect_delay"`
}

// KismetFile locates the server and its credentials.
type KismetFile struct {
	Endpoint   *string `yaml:"endpoint"`
	SessionDB  *string `yaml:"session_db"`
	APIKeyName *string `yaml:"apikey_name"`
	HTTPDConf  *string `yaml:"httpd_conf"`
}

// StatusFile configures the HTTP status page.
type StatusFile struct {
	Addr *string `yaml:"addr"`
}

// MQTTFile configures the optional broker mirror.
type MQTTFile struct {
	Broker      *string        `yaml:"broker"`
	ClientID    *string        `yaml:"client_id"`
	TopicPrefix *string        `yaml:"topic_prefix"`
	Heartbeat   *time.Duration `yaml:"heartbeat"`
	Buffer      *int           `yaml:"buffer"`
}

// Config is the resolved, read-only configuration.
type Config struct {
	Chip  string
	Lines map[gpio.Channel]int

	Policy leds.Policy

	Timeout        time.Duration
	ReconnectDelay time.Duration

	Endpoint   string
	SessionDB  string
	APIKeyName string
	HTTPDConf  string

	HTTPAddr string

	Broker       string // empty disables MQTT
	ClientID     string
	TopicPrefix  string
	Heartbeat    time.Duration
	BufferEvents int
}

// Channels returns the configured LED channels in a fixed order.
func (c Config) Channels() []gpio.Channel {
	var out []gpio.Channel
	for _, ch := range []gpio.Channel{gpio.ChannelWS, gpio.ChannelGPS, gpio.ChannelDevs} {
		if _, ok := c.Lines[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Load reads and parses path. An empty path yields an empty File, which
// resolves to the defaults.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: load: %w", err)
	}
	if err := Parse(data, &f); err != nil {
		return f, err
	}
	return f, nil
}

// Parse decodes a YAML document into f, rejecting unknown keys.
func Parse(data []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse: %w", err)
	}
	return nil
}

// Resolve applies defaults and validates the result.
func (f File) Resolve() (Config, error) {
	policy := leds.DefaultPolicy()
	c := Config{
		Chip:           str(f.GPIO.Chip, gpio.DefaultChip),
		Timeout:        dur(f.Timing.Timeout, supervisor.DefaultTimeout),
		ReconnectDelay: dur(f.Timing.ReconnectDelay, supervisor.DefaultReconnectDelay),
		Endpoint:       str(f.Kismet.Endpoint, DefaultEndpoint),
		SessionDB:      expandHome(str(f.Kismet.SessionDB, DefaultSessionDB)),
		APIKeyName:     str(f.Kismet.APIKeyName, DefaultAPIKeyName),
		HTTPDConf:      expandHome(str(f.Kismet.HTTPDConf, DefaultHTTPDConf)),
		HTTPAddr:       str(f.Status.Addr, DefaultHTTPAddr),
		Broker:         str(f.MQTT.Broker, ""),
		ClientID:       str(f.MQTT.ClientID, DefaultMQTTClientID),
		TopicPrefix:    str(f.MQTT.TopicPrefix, DefaultTopicPrefix),
		Heartbeat:      dur(f.MQTT.Heartbeat, DefaultHeartbeat),
		BufferEvents:   DefaultBufferEvents,
	}
	if f.MQTT.Buffer != nil {
		c.BufferEvents = *f.MQTT.Buffer
	}

	policy.Fix3D = dur(f.Timing.Fix3D, policy.Fix3D)
	policy.Fix2D = dur(f.Timing.Fix2D, policy.Fix2D)
	policy.DeviceFound = dur(f.Timing.DeviceFound, policy.DeviceFound)
	policy.PacketPulse = dur(f.Timing.PacketPulse, policy.PacketPulse)
	policy.ErrorInterval = dur(f.Timing.ErrorInterval, policy.ErrorInterval)
	if f.Features.PacketBlink != nil {
		policy.PacketBlink = *f.Features.PacketBlink
	}
	if f.Features.ErrorBlink != nil {
		policy.ErrorBlink = *f.Features.ErrorBlink
	}
	c.Policy = policy

	c.Lines = map[gpio.Channel]int{
		gpio.ChannelWS:   gpio.DefaultLineWS,
		gpio.ChannelGPS:  gpio.DefaultLineGPS,
		gpio.ChannelDevs: gpio.DefaultLineDevs,
	}
	if l := f.GPIO.Lines; l != nil {
		c.Lines = make(map[gpio.Channel]int)
		for ch, off := range map[gpio.Channel]*int{
			gpio.ChannelWS:   l.WS,
			gpio.ChannelGPS:  l.GPS,
			gpio.ChannelDevs: l.Devs,
		} {
			if off != nil {
				c.Lines[ch] = *off
			}
		}
	}

	return c, c.validate()
}

func (c Config) validate() error {
	var errs []error
	seen := make(map[int]gpio.Channel)
	for _, ch := range c.Channels() {
		off := c.Lines[ch]
		if off < 0 {
			errs = append(errs, fmt.Errorf("gpio line for %s is negative: %d", ch, off))
		}
		if other, dup := seen[off]; dup {
			errs = append(errs, fmt.Errorf("gpio line %d used by both %s and %s", off, other, ch))
		}
		seen[off] = ch
	}
	if c.Policy.ErrorBlink && c.Policy.ErrorInterval <= 0 {
		errs = append(errs, errors.New("error_interval must be positive when error_blink is on"))
	}
	if c.Policy.PacketBlink && c.Policy.PacketPulse <= 0 {
		errs = append(errs, errors.New("packet_pulse must be positive when packet_blink is on"))
	}
	if c.BufferEvents < 0 {
		errs = append(errs, fmt.Errorf("mqtt buffer is negative: %d", c.BufferEvents))
	}
	if c.Endpoint == "" || !strings.HasPrefix(c.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("endpoint must start with /: %q", c.Endpoint))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func str(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func dur(p *time.Duration, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return *p
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
