// Package credentials works out where the Kismet server is and how to
// authenticate, then builds the event bus URI.
//
// Sources are tried in order: --connect with its credentials, local
// credential flags, an api key from Kismet's session.db, the web UI's
// httpd username and password, and finally an optional Provider.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/ini.v1"
)

// DefaultPort is Kismet's default httpd port.
const DefaultPort = 2501

// LocalHost is used for every source except --connect.
const LocalHost = "localhost"

var (
	// ErrNoCredentials means every source was tried and none worked.
	ErrNoCredentials = errors.New("credentials: no usable websocket configuration found")

	// ErrUsage means the command-line credential flags are inconsistent.
	ErrUsage = errors.New("credentials: invalid flags")
)

// Options carries everything Resolve may look at.
type Options struct {
	Connect  string // host:port of a remote server
	User     string
	Password string
	APIKey   string

	SessionDB  string // path to session.db; empty skips it
	APIKeyName string // name of the api key in session.db
	HTTPDConf  string // path to kismet_httpd.conf; empty skips it

	// KismetEtc is the KISMET_ETC directory, checked for httpd_port and
	// httpd_uri_prefix when connecting to the local server from files.
	KismetEtc string

	// Provider, if set, is asked last (e.g. a Kismet plugin IPC handshake).
	Provider Provider
}

// Provider supplies credentials from somewhere other than flags or files.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Credentials identify one Kismet server and how to log in to it.
// APIKey takes precedence over User/Password.
type Credentials struct {
	Host      string
	Port      int
	URIPrefix string
	APIKey    string
	User      string
	Password  string
	Source    string
}

// String describes the credentials without revealing secrets.
func (c Credentials) String() string {
	auth := "user/password"
	if c.APIKey != "" {
		auth = "apikey"
	}
	return fmt.Sprintf("%s (%s from %s)", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), auth, c.Source)
}

// URI builds the websocket URI for endpoint. API keys travel as the KISMET
// query parameter; user and password as URI userinfo.
func (c Credentials) URI(endpoint string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   joinPath(c.URIPrefix, endpoint),
	}
	if c.APIKey != "" {
		u.RawQuery = url.Values{"KISMET": []string{c.APIKey}}.Encode()
	} else if c.User != "" || c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

func joinPath(prefix, endpoint string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix + endpoint
}

// Resolve tries every source in priority order. Flag errors are returned
// immediately; unreadable files are logged and skipped.
func Resolve(ctx context.Context, opts Options) (Credentials, error) {
	if opts.Connect != "" {
		return fromConnect(opts)
	}
	if opts.APIKey != "" || opts.User != "" || opts.Password != "" {
		return fromLocalFlags(opts)
	}

	if opts.SessionDB != "" {
		key, err := SessionKey(opts.SessionDB, opts.APIKeyName)
		if err == nil {
			log.Printf("credentials: apikey %q loaded from %s", opts.APIKeyName, opts.SessionDB)
			c := Credentials{Host: LocalHost, APIKey: key, Source: opts.SessionDB}
			c.Port, c.URIPrefix = LocalPort(opts.KismetEtc)
			return c, nil
		}
		log.Printf("credentials: %v", err)
	}

	if opts.HTTPDConf != "" {
		user, pass, err := HTTPDLogin(opts.HTTPDConf)
		if err == nil {
			log.Printf("credentials: username and password loaded from %s", opts.HTTPDConf)
			c := Credentials{Host: LocalHost, User: user, Password: pass, Source: opts.HTTPDConf}
			c.Port, c.URIPrefix = LocalPort(opts.KismetEtc)
			return c, nil
		}
		log.Printf("credentials: %v", err)
	}

	if opts.Provider != nil {
		c, err := opts.Provider.Credentials(ctx)
		if err != nil {
			return Credentials{}, fmt.Errorf("credentials: provider: %w", err)
		}
		if c.Host == "" {
			c.Host = LocalHost
		}
		if c.Port == 0 {
			c.Port, c.URIPrefix = LocalPort(opts.KismetEtc)
		}
		if c.Source == "" {
			c.Source = "provider"
		}
		return c, nil
	}

	return Credentials{}, ErrNoCredentials
}

func fromConnect(opts Options) (Credentials, error) {
	host, portStr, err := net.SplitHostPort(opts.Connect)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: expected host:port for --connect: %v", ErrUsage, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Credentials{}, fmt.Errorf("%w: bad port in --connect %q", ErrUsage, opts.Connect)
	}
	c := Credentials{Host: host, Port: port, Source: "--connect"}
	switch {
	case opts.APIKey != "":
		c.APIKey = opts.APIKey
	case opts.User != "" && opts.Password != "":
		c.User, c.Password = opts.User, opts.Password
	default:
		return Credentials{}, fmt.Errorf("%w: --connect needs --apikey or --user and --password", ErrUsage)
	}
	return c, nil
}

func fromLocalFlags(opts Options) (Credentials, error) {
	c := Credentials{Host: LocalHost, Port: DefaultPort, Source: "flags"}
	switch {
	case opts.APIKey != "":
		c.APIKey = opts.APIKey
	case opts.User != "" && opts.Password != "":
		c.User, c.Password = opts.User, opts.Password
	default:
		return Credentials{}, fmt.Errorf("%w: --user and --password must be given together", ErrUsage)
	}
	log.Printf("credentials: using port %d, use --connect for a different port", DefaultPort)
	return c, nil
}

type sessionEntry struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// SessionKey returns the token of the api key called name in a Kismet
// session.db file. Comments and trailing commas are tolerated.
func SessionKey(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("session db: %w", err)
	}
	var entries []sessionEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return "", fmt.Errorf("session db %s: %w", path, err)
	}
	for _, e := range entries {
		if e.Name == name && e.Token != "" {
			return e.Token, nil
		}
	}
	return "", fmt.Errorf("session db %s: no key named %q", path, name)
}

// HTTPDLogin reads httpd_username and httpd_password from a Kismet
// key=value config file.
func HTTPDLogin(path string) (user, password string, err error) {
	conf, err := loadKismetConf(path)
	if err != nil {
		return "", "", fmt.Errorf("httpd conf: %w", err)
	}
	sec := conf.Section("")
	if !sec.HasKey("httpd_username") || !sec.HasKey("httpd_password") {
		return "", "", fmt.Errorf("httpd conf %s: httpd_username and httpd_password not found", path)
	}
	return sec.Key("httpd_username").String(), sec.Key("httpd_password").String(), nil
}

// LocalPort looks for httpd_port and httpd_uri_prefix in the Kismet
// config directory, falling back to DefaultPort. Later files win.
func LocalPort(etcDir string) (port int, prefix string) {
	port = DefaultPort
	if etcDir == "" {
		log.Printf("credentials: KISMET_ETC not set, using port %d", DefaultPort)
		return port, ""
	}
	for _, name := range []string{"kismet_httpd.conf", "kismet_site.conf"} {
		path := filepath.Join(etcDir, name)
		conf, err := loadKismetConf(path)
		if err != nil {
			log.Printf("credentials: skipping %s: %v", path, err)
			continue
		}
		sec := conf.Section("")
		if sec.HasKey("httpd_port") {
			p, err := sec.Key("httpd_port").Int()
			if err != nil {
				log.Printf("credentials: bad httpd_port in %s: %v", path, err)
			} else {
				port = p
				log.Printf("credentials: httpd_port %d loaded from %s", port, path)
			}
		}
		if sec.HasKey("httpd_uri_prefix") {
			prefix = sec.Key("httpd_uri_prefix").String()
			log.Printf("credentials: httpd_uri_prefix %q loaded from %s", prefix, path)
		}
	}
	return port, prefix
}

// loadKismetConf parses Kismet's flat key=value format. Values may
// contain '#' and ';', and unknown line shapes are skipped.
func loadKismetConf(path string) (*ini.File, error) {
	return ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      "=",
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, path)
}
