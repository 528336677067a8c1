// Package web has a web based monitor for watching network training progress.
package web

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"sync"

	"digitnet/nnet"
	"digitnet/report"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gonum.org/v1/plot/vg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Monitor collects the per epoch training stats and serves them as a web page
// with live updates pushed over a websocket. It implements nnet.Listener.
type Monitor struct {
	Title    string
	MaxEpoch int
	stats    []nnet.Stats
	hist     nnet.History
	conns    map[*websocket.Conn]bool
	sync.Mutex
}

// NewMonitor creates a monitor for a training run of at most maxEpoch epochs.
func NewMonitor(title string, maxEpoch int) *Monitor {
	return &Monitor{
		Title:    title,
		MaxEpoch: maxEpoch,
		hist:     nnet.NewHistory(),
		conns:    map[*websocket.Conn]bool{},
	}
}

// Publish records the stats for one epoch and notifies connected clients.
func (m *Monitor) Publish(s nnet.Stats) {
	m.Lock()
	defer m.Unlock()
	m.stats = append(m.stats, s)
	m.hist.Append(s)
	msg, err := json.Marshal(s)
	if err != nil {
		log.Println("publish: marshal error", err)
		return
	}
	for conn := range m.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Println("publish: error writing to websocket", err)
			conn.Close()
			delete(m.conns, conn)
		}
	}
}

// ListenAndServe starts the monitor web server on the given address.
func (m *Monitor) ListenAndServe(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/", m.Base())
	r.HandleFunc("/chart/{name:(?:accuracy|loss)}.svg", m.Chart())
	r.HandleFunc("/ws", m.Websocket())
	log.Printf("serving training monitor at http://localhost%s\n", addr)
	return http.ListenAndServe(addr, r)
}

// Handler function for the main page
func (m *Monitor) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Lock()
		defer m.Unlock()
		if err := pageTmpl.Execute(w, m); err != nil {
			logError(w, err)
		}
	}
}

// Handler function for the accuracy and loss chart frames
func (m *Monitor) Chart() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Lock()
		acc, loss := report.Curves(m.hist)
		m.Unlock()
		p := acc
		if mux.Vars(r)["name"] == "loss" {
			p = loss
		}
		svg, err := report.WriteSVG(p, 6*vg.Inch, 4*vg.Inch)
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(svg)
	}
}

// Handler function for websocket connection
func (m *Monitor) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logError(w, err)
			return
		}
		m.Lock()
		m.conns[conn] = true
		m.Unlock()
	}
}

// Epoch returns the latest epoch number with stats recorded.
func (m *Monitor) Epoch() int {
	if len(m.stats) == 0 {
		return 0
	}
	return m.stats[len(m.stats)-1].Epoch
}

// LatestStats returns up to the last n epochs of stats, most recent first.
func (m *Monitor) LatestStats(n int) []nnet.Stats {
	last := len(m.stats) - 1
	res := []nnet.Stats{}
	for i := last; i >= 0 && i > last-n; i-- {
		res = append(res, m.stats[i])
	}
	return res
}

func logError(w http.ResponseWriter, err error) {
	log.Println("error:", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 1em 2em; }
table { border-collapse: collapse; }
td, th { padding: 2px 10px; text-align: right; border-bottom: 1px solid #ccc; }
img { margin-right: 1em; }
</style>
</head>
<body>
<h2>{{.Title}}: epoch <span id="epoch">{{.Epoch}}</span> of {{.MaxEpoch}}</h2>
<div>
<img id="accuracy" src="/chart/accuracy.svg">
<img id="loss" src="/chart/loss.svg">
</div>
<table>
<tr><th>epoch</th><th>loss</th><th>accuracy</th><th>val loss</th><th>val accuracy</th></tr>
<tbody id="stats">
{{range .LatestStats 10}}<tr><td>{{.Epoch}}</td><td>{{printf "%.4f" .Loss}}</td><td>{{printf "%.4f" .Acc}}</td><td>{{printf "%.4f" .ValLoss}}</td><td>{{printf "%.4f" .ValAcc}}</td></tr>
{{end}}
</tbody>
</table>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) {
	var s = JSON.parse(ev.data);
	document.getElementById("epoch").textContent = s.Epoch;
	var row = document.getElementById("stats").insertRow(0);
	[s.Epoch, s.Loss.toFixed(4), s.Acc.toFixed(4), s.ValLoss.toFixed(4), s.ValAcc.toFixed(4)].forEach(function(v) {
		row.insertCell(-1).textContent = v;
	});
	["accuracy", "loss"].forEach(function(name) {
		document.getElementById(name).src = "/chart/" + name + ".svg?t=" + Date.now();
	});
};
</script>
</body>
</html>
`))
