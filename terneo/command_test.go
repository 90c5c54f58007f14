package terneo

import (
	"errors"
	"testing"
)

func TestBuildIntentSingleParameter(t *testing.T) {
	writes, err := buildIntent(SetNumber("brightness", 5), schemaOld, nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	if writes[0].Param.Name != "brightness" || writes[0].Raw != 5 {
		t.Errorf("write = %s/%d, want brightness/5", writes[0].Param.Name, writes[0].Raw)
	}

	par := encodeWrites(writes, GenerationOld)
	if len(par) != 1 || par[0].Num != 23 || par[0].Val != "5" {
		t.Errorf("telegram = %+v, want single [23 _ 5]", par)
	}
}

func TestBuildIntentTargetTemperature(t *testing.T) {
	writes, err := buildIntent(SetTargetTemperature(22.0), schemaNew, nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if len(writes) != 3 {
		t.Fatalf("got %d writes, want powerOff+mode+setpoint", len(writes))
	}
	if writes[0].Param.Name != "powerOff" || writes[0].Raw != 0 {
		t.Errorf("first write = %s/%d, want powerOff/0", writes[0].Param.Name, writes[0].Raw)
	}
	if writes[1].Param.Name != "mode" || writes[1].Raw != 1 {
		t.Errorf("second write = %s/%d, want mode/1 (manual)", writes[1].Param.Name, writes[1].Raw)
	}
	if writes[2].Param.Name != "manualFloor" || writes[2].Raw != 220 {
		t.Errorf("third write = %s/%d, want manualFloor/220 (tenths)", writes[2].Param.Name, writes[2].Raw)
	}
}

func TestBuildIntentTargetTemperatureOldGeneration(t *testing.T) {
	writes, err := buildIntent(SetTargetTemperature(22.0), schemaOld, nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	last := writes[len(writes)-1]
	if last.Param.Name != "manualFloor" || last.Raw != 22 {
		t.Errorf("setpoint write = %s/%d, want manualFloor/22 (whole degrees)", last.Param.Name, last.Raw)
	}
}

func TestBuildIntentTargetFollowsControlSource(t *testing.T) {
	snap := &Snapshot{ControlSource: "air"}
	writes, err := buildIntent(SetTargetTemperature(21.0), schemaNew, snap)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	last := writes[len(writes)-1]
	if last.Param.Name != "manualAir" || last.Raw != 210 {
		t.Errorf("setpoint write = %s/%d, want manualAir/210", last.Param.Name, last.Raw)
	}
}

func TestBuildIntentRejectsUnwritable(t *testing.T) {
	_, err := buildIntent(SetNumber("setTemperature", 25), schemaNew, nil)
	if !errors.Is(err, ErrUnwritableParameter) {
		t.Errorf("err = %v, want ErrUnwritableParameter", err)
	}
}

func TestBuildIntentRejectsInapplicable(t *testing.T) {
	_, err := buildIntent(SetNumber("manualAir", 22), schemaOld, nil)
	if !errors.Is(err, ErrParameterNotApplicable) {
		t.Errorf("err = %v, want ErrParameterNotApplicable", err)
	}
}

func TestBuildIntentRejectsUnknownParameter(t *testing.T) {
	_, err := buildIntent(SetNumber("noSuchThing", 1), schemaNew, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("err = %v, want ValidationError", err)
	}
	if errors.Is(err, ErrParameterNotApplicable) {
		t.Error("unknown parameter must not be reported as generation-inapplicable")
	}
}

func TestBuildIntentRangeCheck(t *testing.T) {
	_, err := buildIntent(SetNumber("brightness", 12), schemaOld, nil)
	if !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("err = %v, want ErrValueOutOfRange", err)
	}

	_, err = buildIntent(SetTargetTemperature(50), schemaNew, nil)
	if !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("setpoint above range: err = %v, want ErrValueOutOfRange", err)
	}
}

func TestBuildIntentLimitPairOrdering(t *testing.T) {
	_, err := buildIntent(SetFloorLimits(40, 20), schemaOld, nil)
	if !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("err = %v, want ErrValueOutOfRange for inverted limits", err)
	}

	if _, err := buildIntent(SetFloorLimits(20, 40), schemaOld, nil); err != nil {
		t.Errorf("ordered limits rejected: %s", err)
	}
}

func TestBuildIntentRejectsDuplicateParam(t *testing.T) {
	intent := SetNumber("brightness", 5).withField("brightness", floatValue(7))
	if _, err := buildIntent(intent, schemaOld, nil); err == nil {
		t.Error("duplicate parameter must be rejected")
	}
}

func TestBuildIntentEnumOption(t *testing.T) {
	writes, err := buildIntent(SetOption("controlType", "air"), schemaNew, nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if writes[0].Raw != 1 {
		t.Errorf("controlType raw = %d, want 1 (air)", writes[0].Raw)
	}

	_, err = buildIntent(SetOption("controlType", "bogus"), schemaNew, nil)
	if !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("err = %v, want ErrValueOutOfRange for unknown option", err)
	}
}

func TestBuildIntentModeUsesParamEncoding(t *testing.T) {
	writes, err := buildIntent(SetMode("schedule"), schemaOld, nil)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	// powerOff then mode; the writable mode parameter encodes schedule as 0.
	if writes[1].Param.Name != "mode" || writes[1].Raw != 0 {
		t.Errorf("mode write = %s/%d, want mode/0", writes[1].Param.Name, writes[1].Raw)
	}
}
