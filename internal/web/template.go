package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
	"class": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		}
		return "unknown"
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Landfill Aeration</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
table.log th { width: auto; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Landfill Aeration{{if .Config.SiteID}} · {{.Config.SiteID}}{{end}}{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Live</h2>
<table>
<tr><th>Aeration</th><td id="aeration" class="{{class .Aeration}}">{{.Aeration}}</td></tr>
{{with .Latest}}<tr><th>Reading at</th><td id="reading-at">{{stamp .Timestamp}}</td></tr>
<tr><th>Temperature</th><td id="temperature">{{.Reading.Temperature}} °C</td></tr>
<tr><th>Oxygen</th><td id="oxygen">{{.Reading.Oxygen}} %</td></tr>
<tr><th>Humidity</th><td id="humidity">{{.Reading.Humidity}} %</td></tr>
<tr><th>pH</th><td id="ph">{{.Reading.PH}}</td></tr>
{{else}}<tr><th>Reading</th><td>waiting for first tick</td></tr>{{end}}
</table>

<h2>Rule</h2>
<table>
<tr><th>ON when</th><td>O₂ &lt; {{.Config.Thresholds.OxygenBelow}} and T &gt; {{.Config.Thresholds.TemperatureAbove}} and RH &lt; {{.Config.Thresholds.HumidityBelow}}</td></tr>
</table>

<h2>History</h2>
{{if .Summary.Count}}<table>
<tr><th>Records</th><td>{{.Summary.Count}} ({{stamp .Summary.First}} to {{stamp .Summary.Last}})</td></tr>
<tr><th>Aeration ON</th><td>{{.Summary.On}} ({{pct .Summary.OnRatio}})</td></tr>
<tr><th>Temperature</th><td>{{.Summary.Temperature.Min}} / {{.Summary.Temperature.Mean}} / {{.Summary.Temperature.Max}}</td></tr>
<tr><th>Oxygen</th><td>{{.Summary.Oxygen.Min}} / {{.Summary.Oxygen.Mean}} / {{.Summary.Oxygen.Max}}</td></tr>
<tr><th>Humidity</th><td>{{.Summary.Humidity.Min}} / {{.Summary.Humidity.Mean}} / {{.Summary.Humidity.Max}}</td></tr>
<tr><th>pH</th><td>{{.Summary.PH.Min}} / {{.Summary.PH.Mean}} / {{.Summary.PH.Max}}</td></tr>
</table>
<table class="log">
<tr><th>Time</th><th>T</th><th>O₂</th><th>RH</th><th>pH</th><th>Status</th></tr>
{{range .Recent}}<tr><td>{{stamp .Timestamp}}</td><td>{{.Reading.Temperature}}</td><td>{{.Reading.Oxygen}}</td><td>{{.Reading.Humidity}}</td><td>{{.Reading.PH}}</td><td class="{{class (printf "%s" .Decision)}}">{{.Decision}}</td></tr>
{{end}}</table>
{{else}}<p id="no-history">No data logged yet.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
<tr><th>Ticks</th><td>{{.Counts.On}} ON, {{.Counts.Off}} OFF, {{.Counts.LogFailures}} log failures</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Log</th><td>{{.Config.LogTarget}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/history.json">history</a> · <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.LiveTopic}}";
  var dot = document.getElementById("live-dot");

  function set(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var a = JSON.parse(payload.toString()).aeration;
      if (!a) { return; }
      var el = document.getElementById("aeration");
      el.textContent = a.status;
      el.className = a.status === "ON" ? "on" : a.status === "OFF" ? "off" : "unknown";
      set("reading-at", a.timestamp);
      set("temperature", a.temperature + " °C");
      set("oxygen", a.oxygen + " %");
      set("humidity", a.humidity + " %");
      set("ph", a.ph);
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

type indexData struct {
	status.Snapshot
	Uptime    time.Duration
	Summary   history.Summary
	Recent    []logic.Record // newest first
	LiveTopic string
}

func pageData(snap status.Snapshot, set history.Set, liveTopic string) indexData {
	tail := set.Tail(recentRows)
	recent := make([]logic.Record, len(tail))
	for i, rec := range tail {
		recent[len(tail)-1-i] = rec
	}
	return indexData{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Summary:   set.Summary(),
		Recent:    recent,
		LiveTopic: liveTopic,
	}
}

func renderHTML(w io.Writer, data indexData) {
	indexTmpl.Execute(w, data)
}
