// Package pipeline enforces safety invariants on candidate aggregation
// pipelines and executes them against the backing store.
package pipeline

import (
	"encoding/json"
	"fmt"
)

// Stage is one step of an aggregation pipeline.
type Stage = map[string]any

// Pipeline is an ordered sequence of aggregation stages.
type Pipeline []Stage

// ResultCap is the mandatory document limit appended to any pipeline that
// lacks one.
const ResultCap = 1000

// EnforceSafety guarantees the pipeline carries a capping stage. If no
// $limit stage exists anywhere in the sequence, one fixed at ResultCap is
// appended. An existing cap is left untouched regardless of its value, so
// the operation is idempotent.
func EnforceSafety(p Pipeline) Pipeline {
	for _, stage := range p {
		if _, ok := stage["$limit"]; ok {
			return p
		}
	}
	out := make(Pipeline, len(p), len(p)+1)
	copy(out, p)
	return append(out, Stage{"$limit": ResultCap})
}

// destructiveStages write to collections; a read-only analytics engine must
// never run them no matter what the generation step proposes.
var destructiveStages = []string{"$out", "$merge"}

// CheckReadOnly rejects pipelines containing destructive stages before they
// reach the store.
func CheckReadOnly(p Pipeline) error {
	for _, stage := range p {
		for _, op := range destructiveStages {
			if _, ok := stage[op]; ok {
				return &QueryInvalidError{
					Pipeline: Render(p),
					Native:   fmt.Sprintf("stage %s is not permitted: pipelines are read-only", op),
				}
			}
		}
	}
	return nil
}

// Render returns the pipeline's JSON form for diagnostics.
func Render(p Pipeline) string {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(data)
}
