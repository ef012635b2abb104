package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// fingerprinter is implemented by executors that wrap further structure,
// such as sub-workflows. Their nested fingerprint participates in the
// parent's fingerprint, so a change at any nesting depth invalidates
// checkpoints of every enclosing workflow.
type fingerprinter interface {
	fingerprint() string
}

// Fingerprint returns a deterministic structural hash of the workflow:
// its executors (recursing into nested sub-workflows), its edge groups,
// and its start executor.
//
// The fingerprint is stored in every checkpoint and validated on
// resume. It covers topology only: predicate functions are not
// hashable and do not participate, so changing a predicate body does
// not invalidate existing checkpoints.
//
// Format: "sha256:" followed by the hex digest.
func (w *Workflow) Fingerprint() string {
	h := sha256.New()

	ids := w.ExecutorIDs()
	sort.Strings(ids)
	for _, id := range ids {
		exec, _ := w.Executor(id)
		if fp, ok := exec.(fingerprinter); ok {
			fmt.Fprintf(h, "executor|%s|%s\n", id, fp.fingerprint())
		} else {
			fmt.Fprintf(h, "executor|%s\n", id)
		}
	}

	// Edge groups hash in declaration order: order is observable in
	// routing, so reordering counts as a structural change.
	for _, g := range w.edges {
		fmt.Fprintf(h, "edge|%s\n", canonicalEdge(g))
	}

	fmt.Fprintf(h, "start|%s\n", w.StartID())

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// canonicalEdge renders an edge group as a stable string. Fan-in
// sources are sorted (membership is a set); switch case targets keep
// declaration order (evaluation order is first-match).
func canonicalEdge(g *EdgeGroup) string {
	var b strings.Builder
	b.WriteString(g.kind.String())

	sources := make([]string, len(g.sources))
	copy(sources, g.sources)
	if g.kind == edgeFanIn {
		sort.Strings(sources)
	}
	b.WriteString("|sources=")
	b.WriteString(strings.Join(sources, ","))

	b.WriteString("|targets=")
	b.WriteString(strings.Join(g.targets, ","))

	if g.kind == edgeSwitch {
		caseTargets := make([]string, len(g.cases))
		for i, c := range g.cases {
			caseTargets[i] = c.Target
		}
		b.WriteString("|cases=")
		b.WriteString(strings.Join(caseTargets, ","))
		b.WriteString("|default=")
		b.WriteString(g.defaultTarget)
	}

	return b.String()
}
