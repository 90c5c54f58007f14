package terneo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDevice emulates the local HTTP API of one thermostat.
type fakeDevice struct {
	mu       sync.Mutex
	sn       string
	params   string // cmd:1 response body
	status   string // cmd:4 response body
	failing  bool
	blocking bool
	writes   []writeRequest
	hits     int
}

func (d *fakeDevice) handler(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hits++

	if d.failing {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	if r.Method == http.MethodGet {
		w.Write([]byte("<html>terneo</html>"))
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad telegram", http.StatusBadRequest)
		return
	}

	if _, isWrite := body["par"]; isWrite {
		if d.blocking {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var req writeRequest
		json.Unmarshal(body["par"], &req.Par)
		json.Unmarshal(body["sn"], &req.SN)
		d.writes = append(d.writes, req)
		w.Write([]byte(`{"sn":"` + d.sn + `"}`))
		return
	}

	var cmd int
	json.Unmarshal(body["cmd"], &cmd)
	switch cmd {
	case cmdGetParams:
		w.Write([]byte(d.params))
	case cmdGetStatus:
		w.Write([]byte(d.status))
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
	}
}

func (d *fakeDevice) setFailing(v bool) {
	d.mu.Lock()
	d.failing = v
	d.mu.Unlock()
}

func (d *fakeDevice) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func (d *fakeDevice) lastWrite(t *testing.T) writeRequest {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writes) == 0 {
		t.Fatal("no write reached the device")
	}
	return d.writes[len(d.writes)-1]
}

const (
	fakeNewParams = `{"sn":"ABC123","par":[[2,2,"1"],[3,2,"0"],[4,3,"210"],[5,3,"225"],[23,2,"5"],[125,7,"0"]]}`
	fakeOldParams = `{"sn":"ABC123","par":[[2,2,"1"],[3,2,"0"],[4,3,null],[5,1,"22"],[23,2,"5"],[125,7,"0"]]}`
	fakeStatus    = `{"sn":"ABC123","t.1":"368","t.2":"352","t.5":"400","m.1":"3","f.0":"1","f.16":"0"}`
)

// startTestClient runs a client against the fake device. The interval
// matters: reconciliation tests want fast polls, write tests want slow ones
// so the optimistic snapshot is observable before the next poll replaces it.
func startTestClient(t *testing.T, dev *fakeDevice, interval time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(dev.handler))
	t.Cleanup(srv.Close)

	tr := NewTransport(strings.TrimPrefix(srv.URL, "http://"), dev.sn)
	tr.spacing = 0

	client := newClient(context.Background(), Config{
		Host:         srv.URL,
		SerialNumber: dev.sn,
		PollInterval: interval,
	}, tr)
	t.Cleanup(client.Stop)
	return client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitReady(t *testing.T, client *Client) *Snapshot {
	t.Helper()
	waitFor(t, "first snapshot", func() bool { return client.Snapshot() != nil })
	return client.Snapshot()
}

func TestClientDetectsAndPolls(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus}
	client := startTestClient(t, dev, time.Minute)

	snap := waitReady(t, client)
	if client.Generation() != GenerationNew {
		t.Errorf("generation = %s, want new", client.Generation())
	}
	if snap.Generation != GenerationNew {
		t.Errorf("snapshot generation = %s, want new", snap.Generation)
	}
	if v, ok := snap.Param("manualFloor"); !ok || v.Float != 22.5 {
		t.Errorf("manualFloor = %v, want 22.5", v.Float)
	}
	if snap.Status.AirTemperature == nil || *snap.Status.AirTemperature != 22.0 {
		t.Errorf("air temperature = %v, want 22.0", snap.Status.AirTemperature)
	}
	if snap.EffectiveMode != "manual" {
		t.Errorf("mode = %s, want manual", snap.EffectiveMode)
	}

	waitFor(t, "polling phase", func() bool { return client.Health().Phase == PhasePolling })
	if h := client.Health(); !h.Fresh {
		t.Error("freshly polled state should be fresh")
	}
}

func TestClientOldGenerationSnapshot(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeOldParams, status: fakeStatus}
	client := startTestClient(t, dev, time.Minute)

	snap := waitReady(t, client)
	if client.Generation() != GenerationOld {
		t.Fatalf("generation = %s, want old (null air markers)", client.Generation())
	}
	if _, ok := snap.Param("manualAir"); ok {
		t.Error("old snapshot must not carry air-only parameters")
	}
	if v, ok := snap.Param("manualFloor"); !ok || v.Float != 22 {
		t.Errorf("manualFloor = %v, want whole-degree 22", v.Float)
	}
	if snap.Status.AirTemperature != nil {
		t.Error("old snapshot must not carry an air reading")
	}
}

func TestClientCommandBeforeDetection(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus}
	srv := httptest.NewServer(http.HandlerFunc(dev.handler))
	t.Cleanup(srv.Close)

	tr := NewTransport(strings.TrimPrefix(srv.URL, "http://"), dev.sn)
	tr.spacing = 0

	// Not started through newClient: generation is still unknown.
	c := &Client{cfg: Config{SerialNumber: dev.sn}, transport: tr}
	err := c.IssueCommand(context.Background(), SetNumber("brightness", 3))
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestClientWriteAndOptimisticUpdate(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus}
	client := startTestClient(t, dev, time.Minute)
	before := waitReady(t, client)

	if err := client.IssueCommand(context.Background(), SetNumber("brightness", 8)); err != nil {
		t.Fatalf("command: %s", err)
	}

	wr := dev.lastWrite(t)
	if wr.SN != "ABC123" {
		t.Errorf("write sn = %q, want ABC123", wr.SN)
	}
	if len(wr.Par) != 1 || wr.Par[0].Num != 23 || wr.Par[0].Val != "8" {
		t.Errorf("write telegram = %+v, want single [23 _ 8]", wr.Par)
	}

	snap := client.Snapshot()
	if v, ok := snap.Param("brightness"); !ok || v.Float != 8 {
		t.Errorf("optimistic brightness = %v, want 8", v.Float)
	}
	if snap.Revision <= before.Revision {
		t.Error("optimistic update must bump the revision")
	}
}

func TestClientInapplicableWriteNeverReachesDevice(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeOldParams, status: fakeStatus}
	client := startTestClient(t, dev, time.Minute)
	waitReady(t, client)

	err := client.IssueCommand(context.Background(), SetNumber("manualAir", 22))
	if !errors.Is(err, ErrParameterNotApplicable) {
		t.Fatalf("err = %v, want ErrParameterNotApplicable", err)
	}
	if dev.writeCount() != 0 {
		t.Error("rejected command must not generate device traffic")
	}
}

func TestClientBlockedWrite(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus, blocking: true}
	client := startTestClient(t, dev, time.Minute)
	waitReady(t, client)

	err := client.IssueCommand(context.Background(), SetNumber("brightness", 8))
	if !errors.Is(err, ErrLocalControlDisabled) {
		t.Errorf("err = %v, want ErrLocalControlDisabled", err)
	}
}

func TestClientDegradedKeepsLastSnapshot(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus}
	client := startTestClient(t, dev, 20*time.Millisecond)
	snap := waitReady(t, client)

	dev.setFailing(true)
	waitFor(t, "degraded phase", func() bool { return client.Health().Phase == PhaseDegraded })

	if client.Snapshot() == nil {
		t.Fatal("last good snapshot must survive an outage")
	}
	if client.Snapshot().Revision < snap.Revision {
		t.Error("snapshot must never roll back")
	}
	if reason := client.Health().Reason; reason == "" {
		t.Error("degraded health should carry a reason")
	}

	waitFor(t, "stale state", func() bool { return !client.Health().Fresh })

	dev.setFailing(false)
	waitFor(t, "recovery", func() bool {
		h := client.Health()
		return h.Phase == PhasePolling && h.Fresh
	})
}

func TestClientListenerSeesStateChanges(t *testing.T) {
	dev := &fakeDevice{sn: "ABC123", params: fakeNewParams, status: fakeStatus}
	client := startTestClient(t, dev, time.Minute)
	waitReady(t, client)

	listener := client.NewListener()
	defer listener.Close()

	if err := client.IssueCommand(context.Background(), SetNumber("brightness", 9)); err != nil {
		t.Fatalf("command: %s", err)
	}

	select {
	case event := <-listener.Receive():
		snap, ok := event.Data.(*Snapshot)
		if !ok {
			t.Fatalf("event data is %T, want *Snapshot", event.Data)
		}
		if v, _ := snap.Param("brightness"); v.Float != 9 {
			t.Errorf("broadcast brightness = %v, want 9", v.Float)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast after a state-changing write")
	}
}
