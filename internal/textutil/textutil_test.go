package textutil

import "testing"

func TestTokenize(t *testing.T) {
	got := Tokenize("So What (Take 2) - Miles Davis!")
	want := []string{"so", "what", "take", "miles", "davis"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}

func TestSimilarityIdentical(t *testing.T) {
	a := NewFingerprint("Blue in Green")
	b := NewFingerprint("blue in green")
	if got := Similarity(a, b); got != 1 {
		t.Fatalf("Similarity(identical) = %v, want 1", got)
	}
}

func TestSimilarityDisjoint(t *testing.T) {
	a := NewFingerprint("autumn leaves")
	b := NewFingerprint("giant steps")
	if got := Similarity(a, b); got != 0 {
		t.Fatalf("Similarity(disjoint) = %v, want 0", got)
	}
}

func TestSimilarityPartial(t *testing.T) {
	a := NewFingerprint("my favorite things")
	b := NewFingerprint("these favorite songs")
	got := Similarity(a, b)
	if got <= 0 || got >= 1 {
		t.Fatalf("Similarity(partial) = %v, want in (0, 1)", got)
	}
}

func TestSimilarityNil(t *testing.T) {
	if got := Similarity(nil, NewFingerprint("x y")); got != 0 {
		t.Fatalf("Similarity(nil) = %v, want 0", got)
	}
	if NewFingerprint("!!") != nil {
		t.Fatal("expected nil fingerprint for token-free text")
	}
}
