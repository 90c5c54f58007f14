package terneo

import "sort"

// Generation is the hardware revision of the thermostat. It is classified
// once per session by DetectGeneration and never changes for the lifetime
// of a Client.
type Generation int

const (
	GenerationUnknown Generation = iota
	GenerationOld                // floor sensor only (pre June 2025)
	GenerationNew                // floor plus air sensor
)

func (g Generation) String() string {
	switch g {
	case GenerationOld:
		return "old"
	case GenerationNew:
		return "new"
	default:
		return "unknown"
	}
}

// DataType is the wire type code carried in the second slot of every par
// triple, as defined by the vendor's local API reference.
type DataType int

const (
	TypeCString DataType = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeBool
)

// Kind describes how a raw wire integer maps onto a typed domain value.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindEnum
	KindTempWhole    // whole degrees Celsius on both generations
	KindTempTenths   // tenths of a degree on both generations
	KindTempSetpoint // whole degrees on old devices, tenths on new ones
	KindPowerWatts   // piecewise encoding of the connected load
)

// Applicability tags which generations populate a parameter.
type Applicability int

const (
	AppliesBoth Applicability = iota
	AppliesOldOnly
	AppliesNewOnly
)

// Param describes one wire parameter: its number, semantic name, scaling,
// writability and generation applicability. The table below is the single
// source of truth; no other component hardcodes a parameter number.
type Param struct {
	Num      int
	Name     string
	Kind     Kind
	Type     DataType // wire type code (old generation, and new unless TypeNew is set)
	TypeNew  DataType // overriding wire type on new devices, if different
	Unit     string
	Writable bool
	Applies  Applicability
	Min, Max float64 // legal range in domain units, inclusive; both zero means unchecked
	Enum     []int64 // legal raw codes for KindEnum
}

func (p Param) appliesTo(gen Generation) bool {
	switch p.Applies {
	case AppliesOldOnly:
		return gen == GenerationOld
	case AppliesNewOnly:
		return gen == GenerationNew
	default:
		return true
	}
}

func (p Param) wireType(gen Generation) DataType {
	if gen == GenerationNew && p.TypeNew != TypeCString {
		return p.TypeNew
	}
	return p.Type
}

// scale is the factor from raw wire integer to domain units.
func (p Param) scale(gen Generation) float64 {
	switch p.Kind {
	case KindTempTenths:
		return 0.1
	case KindTempSetpoint:
		if gen == GenerationNew {
			return 0.1
		}
	}
	return 1
}

func (p Param) legalEnum(raw int64) bool {
	for _, code := range p.Enum {
		if code == raw {
			return true
		}
	}
	return false
}

var paramTable = []Param{
	{Num: 2, Name: "mode", Kind: KindEnum, Type: TypeUint8, Writable: true, Enum: []int64{0, 1}},
	{Num: 3, Name: "controlType", Kind: KindEnum, Type: TypeUint8, Writable: true, Enum: []int64{0, 1, 2}},
	{Num: 4, Name: "manualAir", Kind: KindTempSetpoint, Type: TypeInt16, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 5, Max: 35},
	{Num: 5, Name: "manualFloor", Kind: KindTempSetpoint, Type: TypeInt8, TypeNew: TypeInt16, Unit: "°C", Writable: true, Min: 5, Max: 45},
	{Num: 6, Name: "awayAir", Kind: KindTempSetpoint, Type: TypeInt16, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 5, Max: 35},
	{Num: 7, Name: "awayFloor", Kind: KindTempSetpoint, Type: TypeInt8, TypeNew: TypeInt16, Unit: "°C", Writable: true, Min: 5, Max: 45},
	{Num: 14, Name: "minTempAdvanced", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 0, Max: 40},
	{Num: 15, Name: "maxTempAdvanced", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 5, Max: 45},
	{Num: 17, Name: "connectedPower", Kind: KindPowerWatts, Type: TypeUint16, Unit: "W", Writable: true, Min: 0, Max: 7500},
	{Num: 18, Name: "sensorType", Kind: KindEnum, Type: TypeUint8, Writable: true, Enum: []int64{0, 1, 2, 3, 4, 5, 6}},
	{Num: 19, Name: "hysteresis", Kind: KindTempTenths, Type: TypeUint8, Unit: "°C", Writable: true, Min: 0.5, Max: 10},
	{Num: 20, Name: "airCorrection", Kind: KindTempTenths, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: -12.7, Max: 12.7},
	{Num: 21, Name: "floorCorrection", Kind: KindTempTenths, Type: TypeInt8, Unit: "°C", Writable: true, Min: -12.7, Max: 12.7},
	{Num: 23, Name: "brightness", Kind: KindInt, Type: TypeUint8, Writable: true, Min: 0, Max: 9},
	{Num: 25, Name: "propKoef", Kind: KindInt, Type: TypeUint8, Unit: "min", Writable: true, Min: 0, Max: 30},
	{Num: 26, Name: "upperLimit", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Min: 10, Max: 45},
	{Num: 27, Name: "lowerLimit", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Min: 5, Max: 40},
	{Num: 29, Name: "tempTemperature", Kind: KindTempSetpoint, Type: TypeInt8, TypeNew: TypeInt16, Unit: "°C"},
	{Num: 31, Name: "setTemperature", Kind: KindTempSetpoint, Type: TypeInt8, TypeNew: TypeInt16, Unit: "°C"},
	{Num: 33, Name: "upperAirLimit", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 10, Max: 35},
	{Num: 34, Name: "lowerAirLimit", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 5, Max: 30},
	{Num: 35, Name: "bleSensorInterval", Kind: KindInt, Type: TypeUint8, Unit: "min", Writable: true, Applies: AppliesNewOnly, Min: 1, Max: 60},
	{Num: 36, Name: "bleSensorBind", Kind: KindBool, Type: TypeBool, Applies: AppliesNewOnly},
	{Num: 52, Name: "nightBrightStart", Kind: KindInt, Type: TypeUint16, Unit: "min", Writable: true, Min: 0, Max: 1439},
	{Num: 53, Name: "nightBrightEnd", Kind: KindInt, Type: TypeUint16, Unit: "min", Writable: true, Min: 0, Max: 1439},
	{Num: 55, Name: "relayOnTimeLimit", Kind: KindInt, Type: TypeUint8, Unit: "h"},
	{Num: 62, Name: "upperWarningTemp", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 5, Max: 45},
	{Num: 63, Name: "lowerWarningTemp", Kind: KindTempWhole, Type: TypeInt8, Unit: "°C", Writable: true, Applies: AppliesNewOnly, Min: 0, Max: 40},
	{Num: 80, Name: "buttonMinusCor", Kind: KindInt, Type: TypeInt8, Writable: true, Min: -30, Max: 30},
	{Num: 81, Name: "buttonMenuCor", Kind: KindInt, Type: TypeInt8, Writable: true, Min: -30, Max: 30},
	{Num: 82, Name: "buttonPlusCor", Kind: KindInt, Type: TypeInt8, Writable: true, Min: -30, Max: 30},
	{Num: 109, Name: "offButtonLock", Kind: KindBool, Type: TypeBool},
	{Num: 114, Name: "lanBlock", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 115, Name: "cloudBlock", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 117, Name: "ncContactControl", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 118, Name: "coolingMode", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 120, Name: "useNightBright", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 121, Name: "preControl", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 122, Name: "windowOpenControl", Kind: KindBool, Type: TypeBool, Writable: true, Applies: AppliesNewOnly},
	{Num: 124, Name: "childrenLock", Kind: KindBool, Type: TypeBool, Writable: true},
	{Num: 125, Name: "powerOff", Kind: KindBool, Type: TypeBool, Writable: true},
}

// Schema is the generation-scoped view of the parameter table consulted by
// the codec, the command builder and the API surface.
type Schema struct {
	gen    Generation
	byName map[string]Param
	byNum  map[int]Param
}

var (
	schemaOld = buildSchema(GenerationOld)
	schemaNew = buildSchema(GenerationNew)
)

func buildSchema(gen Generation) *Schema {
	s := &Schema{
		gen:    gen,
		byName: make(map[string]Param),
		byNum:  make(map[int]Param),
	}
	for _, p := range paramTable {
		if !p.appliesTo(gen) {
			continue
		}
		s.byName[p.Name] = p
		s.byNum[p.Num] = p
	}
	return s
}

// SchemaFor returns the descriptor set applicable to a generation.
func SchemaFor(gen Generation) *Schema {
	if gen == GenerationNew {
		return schemaNew
	}
	return schemaOld
}

func (s *Schema) Generation() Generation { return s.gen }

func (s *Schema) ByName(name string) (Param, bool) {
	p, ok := s.byName[name]
	return p, ok
}

func (s *Schema) ByNum(num int) (Param, bool) {
	p, ok := s.byNum[num]
	return p, ok
}

// Names lists every parameter name in the schema, sorted for stable output.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
