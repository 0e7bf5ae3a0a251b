// Package planner maps coherence events to proposed tasks.
package planner

import (
	"context"

	"github.com/google/uuid"
	"github.com/okian/vibecoder/internal/domain/model"
)

const (
	stubTitle     = "feat(agent): stub coherence test for empathy-ledger"
	stubRationale = `Adds a minimal test verifying ledger append & coherence delta.
Raises Z(n) by ~0.03.
`
	stubPatch = `diff --git a/tests/test_ledger.py b/tests/test_ledger.py
new file mode 100644
index 0000000..b1a4e3f
--- /dev/null
+++ b/tests/test_ledger.py
@@ -0,0 +1,7 @@
+from agents.vibe_coder.ledger import Ledger
+import tempfile, json
+def test_append():
+    with tempfile.NamedTemporaryFile(mode="w+", delete=False) as f:
+        led = Ledger(f.name)
+        led.append({"coh": 0.8})
+        assert json.loads(open(f.name).readlines()[-1])["coh"] == 0.8
`
)

// History is the ledger handle a synthesizer may consult to avoid proposing
// the same change twice.
type History interface {
	Path() string
}

// Synthesizer turns one coherence event into one task.
type Synthesizer interface {
	Synthesize(ctx context.Context, event model.CoherenceEvent, history History) (model.Task, error)
}

// Option applies a configuration option to the Stub.
type Option func(*Stub)

// WithIDFunc replaces the task ID generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Stub) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Stub ignores its inputs and always proposes the same change under a fresh ID.
type Stub struct {
	newID func() string
}

// NewStub creates the placeholder synthesizer.
func NewStub(opts ...Option) *Stub {
	s := &Stub{
		newID: func() string { return "task-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize implements Synthesizer.
func (s *Stub) Synthesize(ctx context.Context, _ model.CoherenceEvent, _ History) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	return model.Task{
		ID:        s.newID(),
		Title:     stubTitle,
		Rationale: stubRationale,
		Patch:     stubPatch,
	}, nil
}
