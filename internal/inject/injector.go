package inject

import (
	"sync"

	"main/pkg/exception"

	"github.com/yanun0323/errors"
)

// Stage names a pipeline stage that can be forced to fail.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageNormalize  Stage = "normalize"
	StageLoad       Stage = "load"
	StageCheckpoint Stage = "checkpoint"
)

func (s Stage) valid() bool {
	switch s {
	case StageExtract, StageNormalize, StageLoad, StageCheckpoint:
		return true
	default:
		return false
	}
}

// Rule forces a failure for one source at one stage. AfterBatches delays
// the failure until that many batches cleared the stage, so a run can be
// interrupted mid-stream with earlier batches already durable.
type Rule struct {
	SourceID     string `json:"sourceID"`
	Stage        Stage  `json:"stage"`
	AfterBatches int    `json:"afterBatches"`
}

// Validate ensures the rule targets a known stage.
func (r Rule) Validate() error {
	if r.SourceID == "" {
		return errors.New("inject: rule requires a source id")
	}
	if !r.Stage.valid() {
		return errors.Errorf("inject: unknown stage %q", r.Stage)
	}
	if r.AfterBatches < 0 {
		return errors.New("inject: afterBatches must be >= 0")
	}
	return nil
}

type ruleKey struct {
	sourceID string
	stage    Stage
}

// Injector is the operator-controlled failure switch. A nil Injector
// injects nothing.
type Injector struct {
	mu    sync.Mutex
	rules map[ruleKey]int
}

// New builds an injector from validated rules.
func New(rules []Rule) (*Injector, error) {
	in := &Injector{rules: make(map[ruleKey]int, len(rules))}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		in.rules[ruleKey{r.SourceID, r.Stage}] = r.AfterBatches
	}
	return in, nil
}

// Check consults the switch before the stage runs. Each armed rule fires
// once, then disarms.
func (in *Injector) Check(sourceID string, stage Stage) error {
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	key := ruleKey{sourceID, stage}
	remaining, ok := in.rules[key]
	if !ok {
		return nil
	}
	if remaining > 0 {
		in.rules[key] = remaining - 1
		return nil
	}
	delete(in.rules, key)
	return errors.Wrap(exception.ErrInjectedFailure, string(stage)+" "+sourceID)
}
