package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/status"
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
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"levelOrUnknown": func(l logic.VoltageLevel) string {
		if l == "" {
			return string(logic.VoltageUnknown)
		}
		return string(l)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Keypad Sync</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ON, .HIGH { color: green; font-weight: bold; }
.OFF { color: #888; }
.LOW { color: red; font-weight: bold; }
.UNKNOWN { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Keypad Sync</h1>

<h2>Inputs</h2>
<table>
<tr><th>Human</th><td class="{{onOff .Sample.Human}}">{{onOff .Sample.Human}}</td></tr>
<tr><th>LED1</th><td class="{{onOff .Sample.LED1}}">{{onOff .Sample.LED1}}</td></tr>
<tr><th>Phone</th><td class="{{onOff .Sample.Phone}}">{{onOff .Sample.Phone}}</td></tr>
<tr><th>LED2</th><td class="{{onOff .Sample.LED2}}">{{onOff .Sample.LED2}}</td></tr>
<tr><th>LED3</th><td class="{{onOff .Sample.LED3}}">{{onOff .Sample.LED3}}</td></tr>
<tr><th>Relay3</th><td class="{{onOff .Sample.Relay3}}">{{onOff .Sample.Relay3}}</td></tr>
<tr><th>Voltage</th><td class="{{levelOrUnknown .Voltage}}">{{levelOrUnknown .Voltage}}{{if .Millivolts}} ({{.Millivolts}} mV){{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Pulses</h2>
<table>
<tr><th>Key1</th><td>{{.Pulses.Key1}}</td></tr>
<tr><th>Key2</th><td>{{.Pulses.Key2}}</td></tr>
<tr><th>Key3</th><td>{{.Pulses.Key3}}</td></tr>
<tr><th>Errors</th><td>{{.Pulses.Errors}}</td></tr>
{{with .LastPulse}}<tr><th>Last</th><td>{{.Key}}: {{.Reason}} ({{.Trigger}}, {{.At.UTC.Format "2006-01-02T15:04:05Z"}})</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Iterations</th><td>{{.Iteration}}</td></tr>
<tr><th>Watchdog</th><td>{{if .Config.Watchdog}}{{.Feeds}} feeds{{else}}disabled{{end}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Pulse</th><td>{{.Config.PulseMs}}ms</td></tr>
<tr><th>Threshold</th><td>{{.Config.ThresholdMV}} mV every {{.Config.RecheckPolls}} polls</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

// renderHTML executes the page for snap. The template reads Uptime as a
// field, so it is computed here.
func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, struct {
		status.Snapshot
		Uptime time.Duration
	}{snap, snap.Uptime()})
}
