package terneo

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Parameters whose presence distinguishes the air-sensor hardware. Looked
// up by name in the new-generation schema so no wire number is hardcoded.
var airMarkerNames = [...]string{"manualAir", "awayAir", "upperAirLimit"}

// classifyPar derives the generation from a raw parameter telegram. Some
// firmware echoes unsupported parameters as null or empty, so the check is
// presence and validity, not mere key existence.
func classifyPar(par []parEntry) Generation {
	valid := make(map[int]bool, len(par))
	for _, entry := range par {
		if _, ok := entry.rawInt(); ok {
			valid[entry.Num] = true
		}
	}
	for _, name := range airMarkerNames {
		p, ok := schemaNew.ByName(name)
		if !ok {
			continue
		}
		if valid[p.Num] {
			return GenerationNew
		}
	}
	return GenerationOld
}

// DetectGeneration probes the device once and classifies its hardware
// revision. The result holds for the lifetime of the session; a later poll
// contradicting it is a hard inconsistency, not a re-detection.
func DetectGeneration(ctx context.Context, tr *Transport) (Generation, error) {
	gen, _, err := detect(ctx, tr)
	return gen, err
}

// detect additionally hands back the probe telegram so the caller can seed
// its first snapshot without a second parameter request.
func detect(ctx context.Context, tr *Transport) (Generation, []parEntry, error) {
	resp, err := tr.GetParams(ctx)
	if err != nil {
		return GenerationUnknown, nil, fmt.Errorf("%w: %s", ErrDetectionFailed, err)
	}
	if resp.SN != "" && resp.SN != tr.sn {
		return GenerationUnknown, nil, fmt.Errorf("%w: serial mismatch (device reports %s)", ErrDetectionFailed, resp.SN)
	}
	if len(resp.Par) == 0 {
		return GenerationUnknown, nil, fmt.Errorf("%w: empty parameter telegram", ErrDetectionFailed)
	}

	gen := classifyPar(resp.Par)
	log.Infof("device %s classified as %s generation (%d parameters)", tr.sn, gen, len(resp.Par))
	return gen, resp.Par, nil
}
