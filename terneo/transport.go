package terneo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	requestTimeout = 5 * time.Second
	// The device refuses requests arriving faster than roughly one per
	// second, so outbound telegrams are spaced accordingly.
	defaultRequestSpacing = time.Second
)

// Transport carries telegrams to one thermostat over its local HTTP API.
// The device processes a single telegram at a time, so all traffic through
// a Transport is serialized: polls and writes never interleave on the wire.
type Transport struct {
	baseURL    string
	sn         string
	httpClient *http.Client
	spacing    time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewTransport(host, sn string) *Transport {
	return &Transport{
		baseURL:    "http://" + host,
		sn:         sn,
		httpClient: &http.Client{Timeout: requestTimeout},
		spacing:    defaultRequestSpacing,
	}
}

// Probe checks basic reachability of the device's local API page.
func (t *Transport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api.html", nil)
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return classifyNetErr("probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "probe", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// GetParams requests the full parameter table (cmd:1).
func (t *Transport) GetParams(ctx context.Context) (paramsResponse, error) {
	var resp paramsResponse
	if err := t.roundTrip(ctx, "api", commandRequest{Cmd: cmdGetParams, SN: t.sn}, &resp); err != nil {
		return paramsResponse{}, err
	}
	return resp, nil
}

// GetStatus requests the status telegram (cmd:4).
func (t *Transport) GetStatus(ctx context.Context) (map[string]json.RawMessage, error) {
	var resp map[string]json.RawMessage
	if err := t.roundTrip(ctx, "api", commandRequest{Cmd: cmdGetStatus, SN: t.sn}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SetParams sends a partial parameter-set telegram. Never retried here: a
// timed-out write leaves the device state unknown until the next poll.
func (t *Transport) SetParams(ctx context.Context, par []parEntry) error {
	return t.roundTrip(ctx, "api", writeRequest{SN: t.sn, Par: par}, nil)
}

// Restart asks the device to reboot.
func (t *Transport) Restart(ctx context.Context) error {
	var resp map[string]json.RawMessage
	if err := t.roundTrip(ctx, "test", restartRequest{Cmd: "restart"}, &resp); err != nil {
		return err
	}
	var success string
	if msg, ok := resp["success"]; ok {
		json.Unmarshal(msg, &success)
	}
	if success != "true" {
		return &TransportError{Op: "restart", Err: fmt.Errorf("device refused restart")}
	}
	return nil
}

func (t *Transport) roundTrip(ctx context.Context, endpoint string, body, out any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := t.spacing - time.Since(t.last); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return &TransportError{Op: endpoint, Err: ctx.Err()}
		}
	}
	defer func() { t.last = time.Now() }()

	payload, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: endpoint, Err: err}
	}
	log.Debugf("telegram to %s.cgi: %s", endpoint, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+endpoint+".cgi", bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return classifyNetErr(endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyNetErr(endpoint, err)
	}
	log.Debugf("telegram response (%d): %s", resp.StatusCode, raw)

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return ErrLocalControlDisabled
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: endpoint, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &DecodeError{What: "response envelope", Err: err}
	}
	if msg, ok := envelope["status"]; ok {
		var status string
		if json.Unmarshal(msg, &status) == nil && status == "timeout" {
			return fmt.Errorf("%w: device reported busy", ErrDeviceTimeout)
		}
	}
	if msg, ok := envelope["error"]; ok {
		var devErr string
		json.Unmarshal(msg, &devErr)
		if strings.Contains(strings.ToLower(devErr), "block") {
			return ErrLocalControlDisabled
		}
		return &TransportError{Op: endpoint, Err: fmt.Errorf("device error: %s", devErr)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &DecodeError{What: "telegram body", Err: err}
		}
	}
	return nil
}

func classifyNetErr(op string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %s", ErrDeviceTimeout, err)
	}
	return &TransportError{Op: op, Err: err}
}
