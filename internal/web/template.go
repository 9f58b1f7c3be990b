package web

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/schedule"
	"github.com/sweeney/heater-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": uptime,
	"temp": func(v float64) string {
		if power.Missing(v) {
			return "none"
		}
		return fmt.Sprintf("%.1f", v)
	},
	"hours": func(s schedule.Schedule) string {
		parts := make([]string, len(s))
		for i, v := range s {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ", ")
	},
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

func uptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Heater Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.cutoff { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Heater Controller</h1>

<h2>Temperatures</h2>
<table>
<tr><th>Desired</th><td id="desired">{{temp .Desired}}</td></tr>
<tr><th>Ambient</th><td id="ambient">{{temp .Ambient}}</td></tr>
<tr><th>Heater</th><td id="heater">{{temp .Heater}}</td></tr>
</table>

<h2>Power</h2>
<table>
<tr><th>Level</th><td id="level" class="{{if .Cutoff}}cutoff{{else if eq .Level.String "off"}}off{{else}}on{{end}}">{{.Level}}{{if .Cutoff}} (cutoff){{end}}</td></tr>
<tr><th>Override</th><td id="override">{{.Override}}</td></tr>
<tr><th>Bump</th><td id="bump">{{if .BumpActive}}{{.BumpTemp}} until {{utc .BumpUntil}}{{else}}none{{end}}</td></tr>
<tr><th>Last tick</th><td>{{if .LastTick.IsZero}}never{{else}}{{utc .LastTick}}{{end}}</td></tr>
</table>

<h2>Schedule</h2>
<p id="schedule">{{hours .Schedule}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Broadcast</th><td>{{.Config.BroadcastAddr}}</td></tr>
</table>

<h2>Errors</h2>
<table>
<tr><th>Total</th><td id="errors-total">{{.TotalErrors}}</td></tr>
<tr><th>Since last report</th><td id="errors-new">{{.NewErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Control</th><td>{{.Config.ControlInterval}}</td></tr>
<tr><th>Max heater</th><td>{{.Config.MaxHeater}}</td></tr>
<tr><th>Ports</th><td>ambient {{.Config.AmbientPort}}, console {{.Config.ConsolePort}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
