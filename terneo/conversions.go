package terneo

// Raw status mode (m.1) values. The writable mode parameter uses a smaller
// range; see stringModeToParam.
const (
	statusModeSchedule = 0
	statusModeManual   = 3
	statusModeAway     = 4
)

func rawStatusModeToString(mode int64) string {
	switch mode {
	case statusModeSchedule:
		return "schedule"
	case statusModeManual:
		return "manual"
	case statusModeAway:
		return "away"
	default:
		return "unknown"
	}
}

// stringModeToParam maps a mode name to the raw code of the writable mode
// parameter (schedule=0, manual=1), which differs from the status encoding.
func stringModeToParam(mode string) (int64, bool) {
	switch mode {
	case "schedule":
		return 0, true
	case "manual":
		return 1, true
	default:
		return 0, false
	}
}

func rawControlTypeToString(ct int64) string {
	switch ct {
	case 0:
		return "floor"
	case 1:
		return "air"
	case 2:
		return "airFloorLimit"
	default:
		return "unknown"
	}
}

func stringControlTypeToRaw(ct string) (int64, bool) {
	switch ct {
	case "floor":
		return 0, true
	case "air":
		return 1, true
	case "airFloorLimit":
		return 2, true
	default:
		return 0, false
	}
}

// Sensor type codes name the NTC resistance of the attached floor probe.
var sensorTypeLabels = map[int64]string{
	0: "4.7kOhm",
	1: "6.8kOhm",
	2: "10kOhm",
	3: "12kOhm",
	4: "15kOhm",
	5: "33kOhm",
	6: "47kOhm",
}

func rawSensorTypeToString(v int64) string {
	if label, ok := sensorTypeLabels[v]; ok {
		return label
	}
	return "unknown"
}

func stringSensorTypeToRaw(label string) (int64, bool) {
	for raw, l := range sensorTypeLabels {
		if l == label {
			return raw, true
		}
	}
	return 0, false
}

// enumLabel names a raw enum code for a given parameter, empty when the
// parameter has no label table.
func enumLabel(name string, raw int64) string {
	switch name {
	case "mode":
		if raw == 0 {
			return "schedule"
		}
		return "manual"
	case "controlType":
		return rawControlTypeToString(raw)
	case "sensorType":
		return rawSensorTypeToString(raw)
	default:
		return ""
	}
}

// enumRawForLabel is the inverse of enumLabel for writable enum parameters.
func enumRawForLabel(name, label string) (int64, bool) {
	switch name {
	case "mode":
		return stringModeToParam(label)
	case "controlType":
		return stringControlTypeToRaw(label)
	case "sensorType":
		return stringSensorTypeToRaw(label)
	default:
		return 0, false
	}
}

// wattsFromRaw decodes the piecewise connected-power encoding.
func wattsFromRaw(raw int64) int64 {
	if raw <= 150 {
		return raw * 10
	}
	return raw*20 - 1500
}

func rawFromWatts(watts int64) int64 {
	if watts <= 1500 {
		return watts / 10
	}
	return (watts + 1500) / 20
}
