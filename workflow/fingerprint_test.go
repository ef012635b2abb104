package workflow

import (
	"strings"
	"testing"
)

// buildLinear assembles name: a -> b with the given executor IDs.
func buildLinear(t *testing.T, name string, ids ...string) *Workflow {
	t.Helper()
	b := NewBuilder(name)
	for _, id := range ids {
		if err := b.AddExecutor(newNoopExecutor(t, id)); err != nil {
			t.Fatalf("AddExecutor(%s) failed: %v", id, err)
		}
	}
	if err := b.StartAt(ids[0]); err != nil {
		t.Fatalf("StartAt failed: %v", err)
	}
	for i := 0; i+1 < len(ids); i++ {
		if err := b.Connect(ids[i], ids[i+1]); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}
	wf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return wf
}

func TestFingerprint_Deterministic(t *testing.T) {
	wf1 := buildLinear(t, "wf", "a", "b", "c")
	wf2 := buildLinear(t, "wf", "a", "b", "c")

	fp := wf1.Fingerprint()
	if !strings.HasPrefix(fp, "sha256:") {
		t.Errorf("fingerprint %q lacks sha256: prefix", fp)
	}
	if fp != wf1.Fingerprint() {
		t.Error("fingerprint not stable across calls")
	}
	if fp != wf2.Fingerprint() {
		t.Error("structurally identical workflows disagree")
	}
}

func TestFingerprint_StructuralSensitivity(t *testing.T) {
	base := buildLinear(t, "wf", "a", "b").Fingerprint()

	t.Run("renamed executor", func(t *testing.T) {
		if buildLinear(t, "wf", "a", "c").Fingerprint() == base {
			t.Error("renaming an executor did not change the fingerprint")
		}
	})

	t.Run("added executor", func(t *testing.T) {
		if buildLinear(t, "wf", "a", "b", "c").Fingerprint() == base {
			t.Error("adding an executor did not change the fingerprint")
		}
	})

	t.Run("removed edge", func(t *testing.T) {
		b := NewBuilder("wf")
		_ = b.AddExecutor(newNoopExecutor(t, "a"))
		_ = b.AddExecutor(newNoopExecutor(t, "b"))
		_ = b.StartAt("a")
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if wf.Fingerprint() == base {
			t.Error("removing an edge did not change the fingerprint")
		}
	})

	t.Run("changed start", func(t *testing.T) {
		b := NewBuilder("wf")
		_ = b.AddExecutor(newNoopExecutor(t, "a"))
		_ = b.AddExecutor(newNoopExecutor(t, "b"))
		_ = b.StartAt("b")
		_ = b.Connect("a", "b")
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if wf.Fingerprint() == base {
			t.Error("changing the start executor did not change the fingerprint")
		}
	})

	t.Run("edge kind matters", func(t *testing.T) {
		b := NewBuilder("wf")
		_ = b.AddExecutor(newNoopExecutor(t, "a"))
		_ = b.AddExecutor(newNoopExecutor(t, "b"))
		_ = b.StartAt("a")
		_ = b.FanOut("a", "b")
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if wf.Fingerprint() == base {
			t.Error("direct vs fan-out edge did not change the fingerprint")
		}
	})
}

func TestFingerprint_FanInSourceOrderIrrelevant(t *testing.T) {
	build := func(sources []string) *Workflow {
		b := NewBuilder("wf")
		for _, id := range []string{"x", "y", "sink"} {
			_ = b.AddExecutor(newNoopExecutor(t, id))
		}
		_ = b.StartAt("x")
		if err := b.FanIn(sources, "sink"); err != nil {
			t.Fatalf("FanIn failed: %v", err)
		}
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return wf
	}

	// Fan-in membership is a set: listing sources in a different order
	// is the same structure.
	if build([]string{"x", "y"}).Fingerprint() != build([]string{"y", "x"}).Fingerprint() {
		t.Error("fan-in source order changed the fingerprint")
	}
}

func TestFingerprint_SwitchCaseOrderMatters(t *testing.T) {
	build := func(first, second string) *Workflow {
		b := NewBuilder("wf")
		for _, id := range []string{"src", "p", "q"} {
			_ = b.AddExecutor(newNoopExecutor(t, id))
		}
		_ = b.StartAt("src")
		err := b.Switch("src", []SwitchCase{
			{Target: first, When: func(any) bool { return true }},
			{Target: second, When: func(any) bool { return true }},
		}, "")
		if err != nil {
			t.Fatalf("Switch failed: %v", err)
		}
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return wf
	}

	// Switch evaluation is first-match, so case order is structure.
	if build("p", "q").Fingerprint() == build("q", "p").Fingerprint() {
		t.Error("switch case order did not change the fingerprint")
	}
}

func TestFingerprint_NestedWorkflow(t *testing.T) {
	buildNested := func(innerID string) *Workflow {
		inner := buildLinear(t, "inner", innerID)

		sub, err := NewWorkflowExecutor("nested", inner)
		if err != nil {
			t.Fatalf("NewWorkflowExecutor failed: %v", err)
		}
		b := NewBuilder("outer")
		_ = b.AddExecutor(sub)
		_ = b.StartAt("nested")
		wf, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return wf
	}

	fp1 := buildNested("leaf").Fingerprint()
	fp2 := buildNested("leaf").Fingerprint()
	if fp1 != fp2 {
		t.Error("identical nested workflows disagree")
	}

	// A change two levels down invalidates the parent's fingerprint.
	if buildNested("renamed").Fingerprint() == fp1 {
		t.Error("nested structural change did not change the parent fingerprint")
	}
}
