package terneo

import (
	"reflect"
	"time"
)

// Snapshot is the immutable last-known-good device state. Every successful
// poll replaces it as a whole; readers never observe a partial update and a
// snapshot never mixes fields from two generations.
type Snapshot struct {
	Generation Generation
	Revision   uint64
	UpdatedAt  time.Time

	// Params maps parameter names to decoded values. Its key set is always
	// a subset of the generation's applicable schema.
	Params map[string]Value
	Status Status

	// Derived fields, computed from the raw ones.
	TargetTemperature  *float64
	CurrentTemperature *float64
	EffectiveMode      string // off, schedule, manual, away
	Action             string // off, idle, heating, cooling
	ControlSource      string // floor, air, airFloorLimit
	MinSetpoint        float64
	MaxSetpoint        float64
}

// Param looks up one decoded parameter by name.
func (s *Snapshot) Param(name string) (Value, bool) {
	v, ok := s.Params[name]
	return v, ok
}

func (s *Snapshot) paramBool(name string) (bool, bool) {
	v, ok := s.Params[name]
	if !ok {
		return false, false
	}
	return v.Bool, true
}

func (s *Snapshot) paramFloat(name string) (float64, bool) {
	v, ok := s.Params[name]
	if !ok || v.Unknown {
		return 0, false
	}
	return v.Float, true
}

// PowerOn prefers the status power flag (firmware 2.4+) and falls back to
// the powerOff parameter.
func (s *Snapshot) PowerOn() bool {
	if s.Status.PowerOn != nil {
		return *s.Status.PowerOn
	}
	if off, ok := s.paramBool("powerOff"); ok {
		return !off
	}
	return true
}

// newSnapshot assembles a snapshot and computes its derived fields. The
// computation is pure: the same raw fields always derive the same values.
func newSnapshot(gen Generation, revision uint64, at time.Time, params map[string]Value, status Status) *Snapshot {
	s := &Snapshot{
		Generation: gen,
		Revision:   revision,
		UpdatedAt:  at,
		Params:     params,
		Status:     status,
	}
	s.derive()
	return s
}

func (s *Snapshot) derive() {
	s.ControlSource = "floor"
	if v, ok := s.Params["controlType"]; ok && !v.Unknown {
		s.ControlSource = rawControlTypeToString(v.Raw)
	}
	airControlled := s.Generation == GenerationNew && s.ControlSource != "floor"

	powerOn := s.PowerOn()
	switch {
	case !powerOn:
		s.EffectiveMode = "off"
	case s.Status.Mode != nil:
		s.EffectiveMode = rawStatusModeToString(*s.Status.Mode)
	default:
		s.EffectiveMode = "manual"
		if v, ok := s.Params["mode"]; ok && !v.Unknown && v.Raw == 0 {
			s.EffectiveMode = "schedule"
		}
	}

	// Effective target: manual or away setpoint picked by mode and control
	// source; in schedule mode the device reports the active program
	// setpoint itself.
	switch s.EffectiveMode {
	case "off":
		s.TargetTemperature = nil
	case "manual":
		s.TargetTemperature = s.setpointFor("manualFloor", "manualAir", airControlled)
	case "away":
		s.TargetTemperature = s.setpointFor("awayFloor", "awayAir", airControlled)
	default:
		s.TargetTemperature = s.Status.Setpoint
	}

	s.CurrentTemperature = s.Status.FloorTemperature
	if airControlled && s.Status.AirTemperature != nil {
		s.CurrentTemperature = s.Status.AirTemperature
	}

	cooling, _ := s.paramBool("coolingMode")
	switch {
	case !powerOn:
		s.Action = "off"
	case s.Status.RelayOn != nil && *s.Status.RelayOn:
		if cooling {
			s.Action = "cooling"
		} else {
			s.Action = "heating"
		}
	default:
		s.Action = "idle"
	}

	if airControlled {
		s.MinSetpoint, s.MaxSetpoint = 5, 35
		if v, ok := s.paramFloat("lowerAirLimit"); ok {
			s.MinSetpoint = v
		}
		if v, ok := s.paramFloat("upperAirLimit"); ok {
			s.MaxSetpoint = v
		}
	} else {
		s.MinSetpoint, s.MaxSetpoint = 5, 45
		if v, ok := s.paramFloat("lowerLimit"); ok {
			s.MinSetpoint = v
		}
		if v, ok := s.paramFloat("upperLimit"); ok {
			s.MaxSetpoint = v
		}
	}
}

func (s *Snapshot) setpointFor(floorName, airName string, airControlled bool) *float64 {
	name := floorName
	if airControlled {
		name = airName
	}
	if v, ok := s.paramFloat(name); ok {
		return &v
	}
	return nil
}

// withWrites returns a provisional successor snapshot with the given writes
// applied locally. The freshness timestamp is kept: the next poll, not this
// optimism, confirms what the device actually did.
func (s *Snapshot) withWrites(writes []paramWrite, revision uint64) *Snapshot {
	params := make(map[string]Value, len(s.Params)+len(writes))
	for name, v := range s.Params {
		params[name] = v
	}
	for _, w := range writes {
		v := Value{Param: w.Param, Raw: w.Raw}
		switch w.Param.Kind {
		case KindBool:
			v.Bool = w.Raw != 0
			v.Float = float64(w.Raw)
		case KindEnum:
			v.Float = float64(w.Raw)
			v.Unknown = !w.Param.legalEnum(w.Raw)
		default:
			v.Float = w.Param.domainFromRaw(s.Generation, w.Raw)
		}
		params[w.Param.Name] = v
	}
	next := &Snapshot{
		Generation: s.Generation,
		Revision:   revision,
		UpdatedAt:  s.UpdatedAt,
		Params:     params,
		Status:     s.Status,
	}
	next.derive()
	return next
}

// contentEqual ignores revision and timestamp so change broadcasts only
// fire when the device state itself moved.
func (s *Snapshot) contentEqual(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Generation == other.Generation &&
		reflect.DeepEqual(s.Params, other.Params) &&
		reflect.DeepEqual(s.Status, other.Status)
}
