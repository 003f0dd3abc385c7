package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sessionDB = `[
  {"name": "web logon", "token": "AAAA", "role": "admin"},
  // added by the plugin loader
  {"name": "external plugin", "token": "E1E1E1", "role": "admin"},
]`

func TestConnectFlag(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    Credentials
		wantErr bool
	}{
		{
			name: "apikey wins over user",
			opts: Options{Connect: "kismet.lan:2601", APIKey: "K", User: "u", Password: "p"},
			want: Credentials{Host: "kismet.lan", Port: 2601, APIKey: "K", Source: "--connect"},
		},
		{
			name: "user and password",
			opts: Options{Connect: "10.0.0.2:2501", User: "u", Password: "p"},
			want: Credentials{Host: "10.0.0.2", Port: 2501, User: "u", Password: "p", Source: "--connect"},
		},
		{name: "no credentials", opts: Options{Connect: "host:2501"}, wantErr: true},
		{name: "user only", opts: Options{Connect: "host:2501", User: "u"}, wantErr: true},
		{name: "missing port", opts: Options{Connect: "host", APIKey: "K"}, wantErr: true},
		{name: "bad port", opts: Options{Connect: "host:abc", APIKey: "K"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Fatalf("expected ErrUsage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLocalFlags(t *testing.T) {
	got, err := Resolve(context.Background(), Options{User: "u", Password: "p", KismetEtc: t.TempDir()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Local flags always use the default port, even with KISMET_ETC set.
	want := Credentials{Host: "localhost", Port: DefaultPort, User: "u", Password: "p", Source: "flags"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, err := Resolve(context.Background(), Options{Password: "p"}); !errors.Is(err, ErrUsage) {
		t.Errorf("password alone: expected ErrUsage, got %v", err)
	}
}

func TestSessionDB(t *testing.T) {
	dir := t.TempDir()
	db := writeFile(t, dir, "session.db", sessionDB)

	got, err := Resolve(context.Background(), Options{SessionDB: db, APIKeyName: "external plugin"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.APIKey != "E1E1E1" || got.Host != "localhost" || got.Port != DefaultPort || got.Source != db {
		t.Errorf("got %+v", got)
	}
}

func TestSessionDBFallsThroughToHTTPDConf(t *testing.T) {
	dir := t.TempDir()
	db := writeFile(t, dir, "session.db", sessionDB)
	conf := writeFile(t, dir, "kismet_httpd.conf", "httpd_username=kismet\nhttpd_password=pa#ss=word\n")

	got, err := Resolve(context.Background(), Options{
		SessionDB:  db,
		APIKeyName: "no such key",
		HTTPDConf:  conf,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.User != "kismet" || got.Password != "pa#ss=word" || got.APIKey != "" {
		t.Errorf("got %+v", got)
	}
}

func TestMissingFilesFallThrough(t *testing.T) {
	dir := t.TempDir()
	_, err := Resolve(context.Background(), Options{
		SessionDB:  filepath.Join(dir, "missing.db"),
		APIKeyName: "external plugin",
		HTTPDConf:  writeFile(t, dir, "kismet_httpd.conf", "httpd_username=kismet\n"),
	})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

type stubProvider struct {
	c   Credentials
	err error
}

func (p stubProvider) Credentials(ctx context.Context) (Credentials, error) {
	return p.c, p.err
}

func TestProviderIsLastResort(t *testing.T) {
	got, err := Resolve(context.Background(), Options{Provider: stubProvider{c: Credentials{APIKey: "IPC"}}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.APIKey != "IPC" || got.Host != "localhost" || got.Port != DefaultPort || got.Source != "provider" {
		t.Errorf("got %+v", got)
	}

	boom := errors.New("handshake failed")
	_, err = Resolve(context.Background(), Options{Provider: stubProvider{err: boom}})
	if !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestLocalPort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "kismet_httpd.conf", "httpd_port=2601\nhttpd_uri_prefix=/kismet\n")
	writeFile(t, dir, "kismet_site.conf", "# site overrides\nhttpd_port=2701\nsource=wlan0:name=radio\n")

	port, prefix := LocalPort(dir)
	if port != 2701 {
		t.Errorf("port: got %d, want 2701", port)
	}
	if prefix != "/kismet" {
		t.Errorf("prefix: got %q", prefix)
	}

	if port, prefix := LocalPort(""); port != DefaultPort || prefix != "" {
		t.Errorf("unset etc: got %d %q", port, prefix)
	}
	if port, _ := LocalPort(t.TempDir()); port != DefaultPort {
		t.Errorf("empty etc: got %d", port)
	}
}

func TestLocalPortBadValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "kismet_httpd.conf", "httpd_port=twenty\n")
	if port, _ := LocalPort(dir); port != DefaultPort {
		t.Errorf("got %d, want default", port)
	}
}

func TestSessionDBUsesEtcPort(t *testing.T) {
	dir := t.TempDir()
	db := writeFile(t, dir, "session.db", sessionDB)
	writeFile(t, dir, "kismet_httpd.conf", "httpd_port=3501\n")

	got, err := Resolve(context.Background(), Options{SessionDB: db, APIKeyName: "web logon", KismetEtc: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Port != 3501 || got.APIKey != "AAAA" {
		t.Errorf("got %+v", got)
	}
}

func TestURI(t *testing.T) {
	tests := []struct {
		c    Credentials
		want string
	}{
		{
			Credentials{Host: "localhost", Port: 2501, APIKey: "4F2A"},
			"ws://localhost:2501/eventbus/events.ws?KISMET=4F2A",
		},
		{
			Credentials{Host: "pi", Port: 2501, URIPrefix: "/kismet/", APIKey: "a b"},
			"ws://pi:2501/kismet/eventbus/events.ws?KISMET=a+b",
		},
		{
			Credentials{Host: "pi", Port: 2501, URIPrefix: "kismet", User: "kis", Password: "p@ss"},
			"ws://kis:p%40ss@pi:2501/kismet/eventbus/events.ws",
		},
		{
			Credentials{Host: "::1", Port: 2501, APIKey: "K"},
			"ws://[::1]:2501/eventbus/events.ws?KISMET=K",
		},
	}
	for _, tt := range tests {
		if got := tt.c.URI("/eventbus/events.ws"); got != tt.want {
			t.Errorf("URI(%+v): got %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestStringHidesSecrets(t *testing.T) {
	c := Credentials{Host: "localhost", Port: 2501, APIKey: "SECRET", Source: "flags"}
	if got := c.String(); got != "localhost:2501 (apikey from flags)" {
		t.Errorf("got %q", got)
	}
}
