package idhash

import "testing"

func TestComputeAttemptID_Deterministic(t *testing.T) {
	id1 := ComputeAttemptID("mintA", "poolA", "sig1", 100, 1704067200000)
	id2 := ComputeAttemptID("mintA", "poolA", "sig1", 100, 1704067200000)

	if id1 != id2 {
		t.Errorf("Same inputs produced different IDs: %s vs %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("Expected 64-char hex ID, got %d chars", len(id1))
	}
}

func TestComputeAttemptID_DistinctInputs(t *testing.T) {
	base := ComputeAttemptID("mintA", "poolA", "sig1", 100, 1704067200000)

	variants := []string{
		ComputeAttemptID("mintB", "poolA", "sig1", 100, 1704067200000),
		ComputeAttemptID("mintA", "poolB", "sig1", 100, 1704067200000),
		ComputeAttemptID("mintA", "poolA", "sig2", 100, 1704067200000),
		ComputeAttemptID("mintA", "poolA", "sig1", 101, 1704067200000),
		ComputeAttemptID("mintA", "poolA", "sig1", 100, 1704067200001),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("Variant %d collided with base ID", i)
		}
	}
}

func TestComputePositionID_Deterministic(t *testing.T) {
	id1 := ComputePositionID("mintA", "poolA", "buySig")
	id2 := ComputePositionID("mintA", "poolA", "buySig")

	if id1 != id2 {
		t.Errorf("Same inputs produced different IDs")
	}
	if id1 == ComputePositionID("mintA", "poolA", "otherSig") {
		t.Errorf("Different buy signatures should produce different IDs")
	}
}
