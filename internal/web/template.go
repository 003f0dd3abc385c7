package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/kismet-leds/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stateClass": func(s string) string {
		switch s {
		case "SUBSCRIBED":
			return "connected"
		case "DEGRADED", "CONNECTING":
			return "pending"
		default:
			return "disconnected"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Kismet LEDs</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.blink { color: orange; font-weight: bold; }
.connected { color: green; }
.pending { color: orange; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Kismet LEDs</h1>

<h2>Event Bus</h2>
<table>
<tr><th>State</th><td class="{{stateClass (printf "%s" .State)}}">{{printf "%s" .State}}</td></tr>
<tr><th>Since</th><td>{{stamp .StateSince}}</td></tr>
<tr><th>Server</th><td>{{.Config.Server}}</td></tr>
<tr><th>Endpoint</th><td>{{.Config.Endpoint}}</td></tr>
<tr><th>Last frame</th><td>{{stamp .LastFrame}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td>{{.LastError}}</td></tr>{{end}}
<tr><th>GPS fix</th><td>{{.Fix}}</td></tr>
</table>

<h2>LEDs</h2>
<table>
{{range .LEDs}}<tr><th>{{.Channel}}{{if ge .Line 0}} (line {{.Line}}){{end}}</th><td class="{{if .Blinking}}blink{{else if .On}}on{{else}}off{{end}}">{{if .Blinking}}BLINKING{{else if .On}}ON{{else}}OFF{{end}}</td></tr>
{{else}}<tr><td>no LEDs configured</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Protocol errors</th><td>{{.Counts.ProtocolErrors}}</td></tr>
<tr><th>Connections</th><td>{{.Counts.Connections}}</td></tr>
<tr><th>Disconnects</th><td>{{.Counts.Disconnects}}</td></tr>
<tr><th>Connect failures</th><td>{{.Counts.ConnectFailures}}</td></tr>
<tr><th>New devices</th><td>{{.Counts.NewDevices}}</td></tr>
<tr><th>Datasource errors</th><td>{{.Counts.SourceErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>GPIO</th><td>{{if .Config.Chip}}{{.Config.Chip}}{{else}}log only{{end}}</td></tr>
<tr><th>Timeout</th><td>{{.Config.TimeoutMs}}ms</td></tr>
<tr><th>Reconnect</th><td>{{.Config.ReconnectMs}}ms</td></tr>
<tr><th>Packet blink</th><td>{{if .Config.PacketBlink}}on{{else}}off{{end}}</td></tr>
<tr><th>Error blink</th><td>{{if .Config.ErrorBlink}}on{{else}}off{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render: %v", err)
	}
}
