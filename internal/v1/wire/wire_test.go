package wire

import "testing"

func TestValidSquare(t *testing.T) {
	cases := map[string]bool{
		"e4": true, "a1": true, "h8": true,
		"e9": false, "i4": false, "e": false, "": false,
	}
	for in, want := range cases {
		if got := ValidSquare(in); got != want {
			t.Errorf("ValidSquare(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidPromotion(t *testing.T) {
	if !ValidPromotion("") || !ValidPromotion("q") {
		t.Error("expected empty and q to be valid")
	}
	if ValidPromotion("k") || ValidPromotion("Q") {
		t.Error("expected k and Q to be invalid")
	}
}

func TestValidTimeControlSeconds(t *testing.T) {
	if !ValidTimeControlSeconds(60, 0) || !ValidTimeControlSeconds(3600, 60) {
		t.Error("expected boundary values to be valid")
	}
	if ValidTimeControlSeconds(59, 0) || ValidTimeControlSeconds(3601, 0) || ValidTimeControlSeconds(60, 61) {
		t.Error("expected out-of-range values to be invalid")
	}
}

func TestValidName(t *testing.T) {
	if ValidName("") || ValidName("this name is definitely too long for the limit") {
		t.Error("expected empty/overlong names to be invalid")
	}
	if !ValidName("Magnus") {
		t.Error("expected normal name to be valid")
	}
}
