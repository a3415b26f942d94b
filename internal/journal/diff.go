package journal

import "github.com/sergi/go-diff/diffmatchpatch"

// renderDiff produces a compact human-readable diff between before and
// after using sergi/go-diff (SPEC_FULL.md domain-stack wiring). It backs
// CycleLog.StateDiff, letting an operator see what changed about the
// agent's state across a cycle without reconstructing it from two blobs.
func renderDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
