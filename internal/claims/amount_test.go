package claims

import "testing"

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		base     string
		decimals int
		want     string
	}{
		{"0", 8, "0"},
		{"1", 0, "1"},
		{"150000000", 8, "1.5"},
		{"100000000", 8, "1"},
		{"1", 8, "0.00000001"},
		{"123456789", 3, "123456.789"},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", 18,
			"115792089237316195423570985008687907853269984665640564039457.584007913129639935"},
	}
	for _, tt := range tests {
		got, err := FormatAmount(tt.base, tt.decimals)
		if err != nil {
			t.Fatalf("FormatAmount(%s, %d) error: %v", tt.base, tt.decimals, err)
		}
		if got != tt.want {
			t.Errorf("FormatAmount(%s, %d) = %q, want %q", tt.base, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatAmount_Invalid(t *testing.T) {
	for _, base := range []string{"", "-1", "1.5", "abc"} {
		if _, err := FormatAmount(base, 8); err == nil {
			t.Errorf("FormatAmount(%q) should fail", base)
		}
	}
	if _, err := FormatAmount("1", 78); err == nil {
		t.Error("decimals beyond 77 should fail")
	}
}
