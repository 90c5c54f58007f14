package terneo

import "fmt"

// FieldValue is one desired parameter value inside an intent, in domain
// units. Exactly one variant is set, matching the parameter's kind.
type FieldValue struct {
	Float  *float64
	Bool   *bool
	Option *string
}

func floatValue(v float64) FieldValue { return FieldValue{Float: &v} }
func boolValue(v bool) FieldValue     { b := v; return FieldValue{Bool: &b} }
func optionValue(v string) FieldValue { s := v; return FieldValue{Option: &s} }

// Intent is a high-level command against the device. Fields name the
// parameters to change; Target, when set, is resolved by the builder to the
// setpoint parameter implied by the current control type and generation,
// together with the writes needed to make the setpoint effective.
type Intent struct {
	Name   string
	Target *float64
	Fields []IntentField
}

// IntentField pairs a parameter name with its desired value. Order is
// preserved into the outbound telegram.
type IntentField struct {
	Param string
	Value FieldValue
}

func (i Intent) withField(param string, v FieldValue) Intent {
	i.Fields = append(i.Fields, IntentField{Param: param, Value: v})
	return i
}

// SetTargetTemperature switches the device on, selects manual mode and sets
// the setpoint governing the active control source.
func SetTargetTemperature(celsius float64) Intent {
	return Intent{Name: "setTargetTemperature", Target: &celsius}
}

// SetMode selects "schedule" or "manual" operation, powering the device on.
func SetMode(mode string) Intent {
	return Intent{Name: "setMode"}.
		withField("powerOff", boolValue(false)).
		withField("mode", optionValue(mode))
}

func TurnOn() Intent {
	return Intent{Name: "turnOn"}.withField("powerOff", boolValue(false))
}

func TurnOff() Intent {
	return Intent{Name: "turnOff"}.withField("powerOff", boolValue(true))
}

// SetFloorLimits bounds the floor setpoint range (both generations).
func SetFloorLimits(lower, upper float64) Intent {
	return Intent{Name: "setFloorLimits"}.
		withField("lowerLimit", floatValue(lower)).
		withField("upperLimit", floatValue(upper))
}

// SetAirLimits bounds the air setpoint range (new generation only).
func SetAirLimits(lower, upper float64) Intent {
	return Intent{Name: "setAirLimits"}.
		withField("lowerAirLimit", floatValue(lower)).
		withField("upperAirLimit", floatValue(upper))
}

// SetNumber writes one numeric parameter in domain units.
func SetNumber(param string, value float64) Intent {
	return Intent{Name: "set " + param}.withField(param, floatValue(value))
}

// SetSwitch writes one boolean parameter.
func SetSwitch(param string, on bool) Intent {
	return Intent{Name: "set " + param}.withField(param, boolValue(on))
}

// SetOption writes one enum parameter by its option label.
func SetOption(param, option string) Intent {
	return Intent{Name: "set " + param}.withField(param, optionValue(option))
}

// limitPairs are validated as min <= max when both appear in one intent.
var limitPairs = [...][2]string{
	{"lowerLimit", "upperLimit"},
	{"lowerAirLimit", "upperAirLimit"},
	{"minTempAdvanced", "maxTempAdvanced"},
	{"lowerWarningTemp", "upperWarningTemp"},
}

// buildIntent validates an intent against the schema and current snapshot
// and resolves it into the minimal ordered set of parameter writes. All
// rejection happens here, before any network call.
func buildIntent(intent Intent, schema *Schema, snap *Snapshot) ([]paramWrite, error) {
	fields := intent.Fields

	if intent.Target != nil {
		setpoint, err := resolveSetpointParam(schema, snap)
		if err != nil {
			return nil, err
		}
		// Power on and force manual mode so the written setpoint actually
		// takes effect; a bare setpoint write would leave the device in a
		// contradictory state under schedule control.
		fields = append([]IntentField{
			{Param: "powerOff", Value: boolValue(false)},
			{Param: "mode", Value: optionValue("manual")},
			{Param: setpoint, Value: floatValue(*intent.Target)},
		}, fields...)
	}

	if len(fields) == 0 {
		return nil, &ValidationError{Err: fmt.Errorf("empty intent %q", intent.Name)}
	}

	writes := make([]paramWrite, 0, len(fields))
	seen := make(map[string]float64, len(fields))
	for _, f := range fields {
		w, domain, err := buildField(f, schema)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[f.Param]; dup {
			return nil, &ValidationError{Param: f.Param, Err: fmt.Errorf("parameter targeted twice")}
		}
		seen[f.Param] = domain
		writes = append(writes, w)
	}

	for _, pair := range limitPairs {
		lo, hasLo := seen[pair[0]]
		hi, hasHi := seen[pair[1]]
		if hasLo && hasHi && lo > hi {
			return nil, &ValidationError{Param: pair[0], Err: fmt.Errorf("%w: lower %v above upper %v", ErrValueOutOfRange, lo, hi)}
		}
	}
	return writes, nil
}

func buildField(f IntentField, schema *Schema) (paramWrite, float64, error) {
	p, ok := schema.ByName(f.Param)
	if !ok {
		if paramExists(f.Param) {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: ErrParameterNotApplicable}
		}
		return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("unknown parameter")}
	}
	if !p.Writable {
		return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: ErrUnwritableParameter}
	}

	var raw int64
	var domain float64
	switch p.Kind {
	case KindBool:
		if f.Value.Bool == nil {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("boolean value required")}
		}
		if *f.Value.Bool {
			raw = 1
		}
		domain = float64(raw)
	case KindEnum:
		if f.Value.Option == nil {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("option value required")}
		}
		code, ok := enumRawForLabel(p.Name, *f.Value.Option)
		if !ok || !p.legalEnum(code) {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("%w: option %q", ErrValueOutOfRange, *f.Value.Option)}
		}
		raw = code
		domain = float64(code)
	default:
		if f.Value.Float == nil {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("numeric value required")}
		}
		domain = *f.Value.Float
		if (p.Min != 0 || p.Max != 0) && (domain < p.Min || domain > p.Max) {
			return paramWrite{}, 0, &ValidationError{Param: f.Param, Err: fmt.Errorf("%w: %v not in [%v, %v]", ErrValueOutOfRange, domain, p.Min, p.Max)}
		}
		raw = p.rawFromDomain(schema.Generation(), domain)
	}
	return paramWrite{Param: p, Raw: raw}, domain, nil
}

// resolveSetpointParam picks the manual setpoint parameter governing the
// active control source. Old devices only carry the floor setpoint.
func resolveSetpointParam(schema *Schema, snap *Snapshot) (string, error) {
	if schema.Generation() != GenerationNew {
		return "manualFloor", nil
	}
	source := "floor"
	if snap != nil {
		source = snap.ControlSource
	}
	if source == "floor" {
		return "manualFloor", nil
	}
	return "manualAir", nil
}

func paramExists(name string) bool {
	for _, p := range paramTable {
		if p.Name == name {
			return true
		}
	}
	return false
}
