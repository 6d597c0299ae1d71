package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/status"
	"github.com/sweeney/keypad-sync/internal/supervisor"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:       10,
		PulseMs:      50,
		ThresholdMV:  3000,
		RecheckPolls: 100,
		Watchdog:     true,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPAddr:     ":80",
	}
	tr := status.NewTracker(start, "3f0c9a1e-boot", cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.StepCompleted(supervisor.State{
		Iteration:  7,
		Sample:     logic.Sample{Human: true, LED1: true},
		Voltage:    logic.VoltageHigh,
		Millivolts: 3300,
		Feeds:      7,
	})
	tr.RuleEvaluated(supervisor.RuleEvent{
		Trigger:  supervisor.TriggerChange,
		Decision: logic.EvaluateKey(logic.Key1, logic.Sample{Human: true}, logic.VoltageStatus{}),
		Pulsed:   true,
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.Inputs.Human || !sj.Status.Inputs.LED1 {
		t.Errorf("Inputs: got %+v", sj.Status.Inputs)
	}
	if sj.Status.Voltage.Level != "HIGH" || sj.Status.Voltage.Millivolts != 3300 {
		t.Errorf("Voltage: got %+v", sj.Status.Voltage)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if sj.Status.Iteration != 7 || sj.Status.WatchdogFeeds != 7 {
		t.Errorf("Iteration/Feeds: got %d/%d", sj.Status.Iteration, sj.Status.WatchdogFeeds)
	}
	if sj.Status.Pulses.Key1 != 1 {
		t.Errorf("Pulses.Key1: got %d, want 1", sj.Status.Pulses.Key1)
	}
	if sj.Status.LastPulse == nil || sj.Status.LastPulse.Reason != "Human but LED1 off" {
		t.Errorf("LastPulse: got %+v", sj.Status.LastPulse)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.BootID != "3f0c9a1e-boot" {
		t.Errorf("BootID: got %q", sj.Status.BootID)
	}
	if sj.Status.Config.PulseMs != 50 {
		t.Errorf("Config.PulseMs: got %d, want 50", sj.Status.Config.PulseMs)
	}
}

func TestJSONUnknownBeforeStartup(t *testing.T) {
	ts, _ := newTestServer(t)

	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Voltage.Level != "UNKNOWN" {
		t.Errorf("Voltage before startup: got %q, want UNKNOWN", sj.Status.Voltage.Level)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before the first iteration")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.StepCompleted(supervisor.State{
		Sample:     logic.Sample{Phone: true},
		Voltage:    logic.VoltageLow,
		Millivolts: 2870,
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Keypad Sync", "LOW (2870 mV)", "3f0c9a1e-boot", "3000 mV every 100 polls"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHTMLLastPulse(t *testing.T) {
	ts, tr := newTestServer(t)

	if strings.Contains(getBody(t, ts.URL+"/"), "<th>Last</th>") {
		t.Error("no last pulse row expected before any pulse")
	}

	tr.RuleEvaluated(supervisor.RuleEvent{
		Trigger:  supervisor.TriggerRecheck,
		Decision: logic.Decision{Key: logic.Key3, Desired: true, Known: true, Mismatch: logic.WantOnObservedOff},
		Pulsed:   true,
	})

	body := getBody(t, ts.URL+"/index.html")
	if !strings.Contains(body, "Key3: VoltageLow but Relay3 off (recheck,") {
		t.Errorf("last pulse not rendered:\n%s", body)
	}
}

func TestHTMLBrokerDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), "boot", status.Config{})
	ts := httptest.NewServer(New(":0", tr).Handler())
	defer ts.Close()

	if body := getBody(t, ts.URL+"/"); !strings.Contains(body, "<tr><th>Broker</th><td>disabled</td></tr>") {
		t.Error("expected broker shown as disabled")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Allow"); got != "GET, HEAD" {
			t.Errorf("POST %s: Allow %q", path, got)
		}
	}
}

func TestResponsesNotCached(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if got := resp.Header.Get("Cache-Control"); got != "no-store" {
			t.Errorf("GET %s: Cache-Control %q, want no-store", path, got)
		}
		if resp.ContentLength != int64(len(body)) {
			t.Errorf("GET %s: Content-Length %d, body %d bytes", path, resp.ContentLength, len(body))
		}
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.StepCompleted(supervisor.State{Iteration: 1, Sample: logic.Sample{Relay3: true}, Voltage: logic.VoltageLow})
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if !sj2.Status.Inputs.Relay3 {
		t.Error("expected Relay3 after update")
	}
	if sj2.Status.Voltage.Level != "LOW" {
		t.Errorf("Voltage: got %q, want LOW", sj2.Status.Voltage.Level)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestServeAndShutdown(t *testing.T) {
	tr := status.NewTracker(time.Now(), "boot", status.Config{})
	srv := New("127.0.0.1:0", tr)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	getJSON(t, "http://"+ln.Addr().String()+"/index.json")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != http.ErrServerClosed {
		t.Errorf("Serve: got %v, want ErrServerClosed", err)
	}
}
