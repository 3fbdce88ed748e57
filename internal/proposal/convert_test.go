package proposal

import (
	"errors"
	"testing"

	xerrors "AgoraChain/internal/errors"
)

func TestToWeiExactConversion(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.00080", "800000000000000"},
		{"0", "0"},
		{"0.000000000000000001", "1"},
		{"12.5", "12500000000000000000"},
		{" 0.00001 ", "10000000000000"},
	}
	for _, tc := range cases {
		got, err := ToWei(tc.in)
		if err != nil {
			t.Fatalf("ToWei(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ToWei(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestToWeiRejectsMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"-1",
		"abc",
		"1.2.3",
		"1e18",
		".",
		"0.0000000000000000001",
	}
	for _, in := range inputs {
		if _, err := ToWei(in); err == nil {
			t.Fatalf("ToWei(%q): expected error", in)
		} else if !errors.Is(err, xerrors.New(xerrors.CodeInvalidAmount, "")) {
			t.Fatalf("ToWei(%q): expected INVALID_AMOUNT, got %v", in, err)
		}
	}
}
