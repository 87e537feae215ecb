package testutil

import "testing"

func TestRandomIDIsNonZeroAndVaries(t *testing.T) {
	a := RandomID()
	b := RandomID()
	var zero [32]byte
	if [32]byte(a) == zero {
		t.Fatalf("expected a non-zero id")
	}
	if a == b {
		t.Fatalf("expected two calls to produce distinct ids")
	}
}
