package terneo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Commands of the local telegram protocol.
const (
	cmdGetParams = 1
	cmdGetStatus = 4
)

// parEntry is one wire triple [number, type code, value]. Values travel as
// strings; some firmware revisions echo unsupported parameters as null.
type parEntry struct {
	Num  int
	Type DataType
	Val  string
	null bool
}

func (e parEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Num, int(e.Type), e.Val})
}

func (e *parEntry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("par entry has %d elements, want 3", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Num); err != nil {
		return fmt.Errorf("par number: %w", err)
	}
	var typ int
	if err := json.Unmarshal(parts[1], &typ); err != nil {
		return fmt.Errorf("par type: %w", err)
	}
	e.Type = DataType(typ)

	// The value slot is usually a quoted string but may be a bare number
	// or null depending on firmware.
	if string(parts[2]) == "null" {
		e.null = true
		return nil
	}
	if err := json.Unmarshal(parts[2], &e.Val); err != nil {
		var num json.Number
		if err := json.Unmarshal(parts[2], &num); err != nil {
			return fmt.Errorf("par value: %w", err)
		}
		e.Val = num.String()
	}
	return nil
}

// rawInt parses the value slot; ok is false for null or unparseable values.
func (e parEntry) rawInt() (int64, bool) {
	if e.null || e.Val == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(e.Val, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Request and response envelopes of api.cgi.

type commandRequest struct {
	Cmd int    `json:"cmd"`
	SN  string `json:"sn"`
}

type writeRequest struct {
	SN  string     `json:"sn"`
	Par []parEntry `json:"par"`
}

type paramsResponse struct {
	SN  string     `json:"sn"`
	Par []parEntry `json:"par"`
}

type restartRequest struct {
	Cmd string `json:"cmd"`
}

// Value is one decoded parameter in domain units.
type Value struct {
	Param Param
	Raw   int64
	Float float64 // scaled numeric value (temperatures, watts, plain ints)
	Bool  bool
	// Unknown marks an enum code outside the declared legal set. The rest
	// of the snapshot is unaffected by one anomalous field.
	Unknown bool
}

// Label names the enum value, or "" for non-enum parameters.
func (v Value) Label() string {
	if v.Param.Kind != KindEnum || v.Unknown {
		return ""
	}
	return enumLabel(v.Param.Name, v.Raw)
}

func (p Param) domainFromRaw(gen Generation, raw int64) float64 {
	if p.Kind == KindPowerWatts {
		return float64(wattsFromRaw(raw))
	}
	return float64(raw) * p.scale(gen)
}

func (p Param) rawFromDomain(gen Generation, v float64) int64 {
	if p.Kind == KindPowerWatts {
		return rawFromWatts(int64(math.Round(v)))
	}
	return int64(math.Round(v / p.scale(gen)))
}

// decodeParams translates a raw par telegram into typed values using the
// active schema. Wire numbers absent from the schema are skipped so newer
// firmware additions never break a poll; a malformed single value is
// dropped with a warning rather than failing the whole snapshot.
func decodeParams(par []parEntry, schema *Schema) map[string]Value {
	values := make(map[string]Value, len(par))
	for _, entry := range par {
		p, ok := schema.ByNum(entry.Num)
		if !ok {
			continue
		}
		raw, ok := entry.rawInt()
		if !ok {
			log.Warnf("skipping unparseable value for parameter %s (%d): %q", p.Name, p.Num, entry.Val)
			continue
		}
		v := Value{Param: p, Raw: raw}
		switch p.Kind {
		case KindBool:
			v.Bool = raw != 0
			v.Float = float64(raw)
		case KindEnum:
			v.Float = float64(raw)
			if !p.legalEnum(raw) {
				v.Unknown = true
				log.Warnf("parameter %s (%d) carries unknown enum code %d", p.Name, p.Num, raw)
			}
		default:
			v.Float = p.domainFromRaw(schema.Generation(), raw)
		}
		values[p.Name] = v
	}
	return values
}

// paramWrite is one validated outbound field, produced by the command
// builder and consumed by encodeWrites.
type paramWrite struct {
	Param Param
	Raw   int64
}

// encodeWrites renders validated writes as a minimal partial telegram. It
// emits exactly the fields of the intent and nothing else: writing an
// unrelated parameter could change unrelated device behavior.
func encodeWrites(writes []paramWrite, gen Generation) []parEntry {
	par := make([]parEntry, 0, len(writes))
	for _, w := range writes {
		par = append(par, parEntry{
			Num:  w.Param.Num,
			Type: w.Param.wireType(gen),
			Val:  strconv.FormatInt(w.Raw, 10),
		})
	}
	return par
}

// Status carries the cmd:4 readings. Temperatures arrive as raw*16.
type Status struct {
	FloorTemperature *float64
	AirTemperature   *float64
	Setpoint         *float64
	Mode             *int64
	RelayOn          *bool
	PowerOn          *bool
}

func statusFloat(raw map[string]json.RawMessage, key string) (float64, bool) {
	msg, ok := raw[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// decodeStatus translates the cmd:4 telegram. The air reading (t.2) is only
// honored on new-generation devices; old firmware may echo a garbage slot.
func decodeStatus(raw map[string]json.RawMessage, gen Generation) Status {
	var st Status
	if f, ok := statusFloat(raw, "t.1"); ok {
		v := f / 16.0
		st.FloorTemperature = &v
	}
	if gen == GenerationNew {
		if f, ok := statusFloat(raw, "t.2"); ok {
			v := f / 16.0
			st.AirTemperature = &v
		}
	}
	if f, ok := statusFloat(raw, "t.5"); ok {
		v := f / 16.0
		st.Setpoint = &v
	}
	if f, ok := statusFloat(raw, "m.1"); ok {
		v := int64(f)
		st.Mode = &v
	}
	if f, ok := statusFloat(raw, "f.0"); ok {
		v := f == 1
		st.RelayOn = &v
	}
	if f, ok := statusFloat(raw, "f.16"); ok {
		v := f == 0
		st.PowerOn = &v
	}
	return st
}
