package processors

import "testing"

func TestInterrupt_Epochs(t *testing.T) {
	i := NewInterrupt()
	if i.Epoch() != 0 {
		t.Fatalf("fresh epoch = %d, want 0", i.Epoch())
	}

	sample := i.Epoch()
	if i.Stale(sample) {
		t.Error("unmoved epoch reported stale")
	}

	i.Raise()
	if i.Epoch() != 1 {
		t.Errorf("epoch after raise = %d, want 1", i.Epoch())
	}
	if !i.Stale(sample) {
		t.Error("raised epoch not reported stale")
	}
	if i.Stale(i.Epoch()) {
		t.Error("current sample reported stale")
	}
}
