package domain

import "testing"

func TestPlaceholderDescriptor(t *testing.T) {
	mint := "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

	d := PlaceholderDescriptor(mint, 5)
	if d.Resolved {
		t.Error("placeholder must not be marked resolved")
	}
	if d.Symbol != "Unknown" {
		t.Errorf("symbol = %q, want Unknown", d.Symbol)
	}
	if d.Name != "Token: DezX...B263" {
		t.Errorf("name = %q", d.Name)
	}
	if d.Decimals != 5 {
		t.Errorf("decimals = %d, want 5", d.Decimals)
	}
}

func TestTruncateMint_Short(t *testing.T) {
	if got := TruncateMint("abc"); got != "abc" {
		t.Errorf("short mint truncated: %q", got)
	}
}

func TestSwapModeValid(t *testing.T) {
	if !SwapModeExactIn.Valid() || !SwapModeExactOut.Valid() {
		t.Error("known modes reported invalid")
	}
	if SwapMode("ExactBoth").Valid() {
		t.Error("unknown mode reported valid")
	}
}
