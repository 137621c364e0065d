package fleetmath

import "testing"

func TestHash64Deterministic(t *testing.T) {
	a := Hash64("plant-1", 12345)
	b := Hash64("plant-1", 12345)
	if a != b {
		t.Fatalf("Hash64 must be deterministic, got %v then %v", a, b)
	}
}

func TestHash64Range(t *testing.T) {
	for i := uint64(0); i < 200; i++ {
		v := Hash64("plant-x", i*97)
		if v < 0 || v >= 1 {
			t.Fatalf("Hash64(%d) out of [0,1): %v", i, v)
		}
	}
}

func TestHash64SensitiveToIdentity(t *testing.T) {
	a := Hash64("plant-1", 5)
	b := Hash64("plant-2", 5)
	if a == b {
		t.Fatalf("different plant ids should not collide for the same epoch (got equal values by chance, re-check hash mix)")
	}
}

func TestSignedRange(t *testing.T) {
	if Signed(0) != -1 {
		t.Fatalf("Signed(0) = %v, want -1", Signed(0))
	}
	if Signed(1) != 1 {
		t.Fatalf("Signed(1) = %v, want 1", Signed(1))
	}
}
