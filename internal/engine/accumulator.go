package engine

import (
	"github.com/randalmurphal/orc/internal/compress"
)

// stageAccumulator wraps a compress.Accumulator with the bookkeeping the
// drivers need to resume mid-task: the index a given stage occupies (for
// BuildPriorContext's distance calculation) and a replay path that seeds
// the accumulator from a previously-completed stage's stored output
// without re-running compression.
type stageAccumulator struct {
	acc   *compress.Accumulator
	index map[string]int
}

func (e *Engine) newAccumulator(run *taskRun) *stageAccumulator {
	return &stageAccumulator{acc: compress.NewAccumulator(), index: map[string]int{}}
}

// replay seeds the accumulator for a stage that was already completed on a
// prior attempt, using its stored output as both L0 and L1 fallback text so
// later stages still get a usable (if unrefined) prior-context entry
// without invoking the compressor again.
func (a *stageAccumulator) replay(run *taskRun, stageName string) {
	st, ok := run.stages[stageName]
	if !ok {
		return
	}
	a.add(stageName, compress.Output{
		StageName: stageName,
		L0:        truncate(st.Output, 200),
		L1:        truncate(st.Output, 1500),
		L2:        st.Output,
	})
}

func (a *stageAccumulator) add(stageName string, out compress.Output) {
	a.index[stageName] = a.acc.Len()
	a.acc.Add(out)
}

func (a *stageAccumulator) priorContext(stageName string, contextFrom []string) []compress.PriorContextEntry {
	idx, ok := a.index[stageName]
	if !ok {
		idx = a.acc.Len()
	}
	return a.acc.BuildPriorContext(idx, contextFrom)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
