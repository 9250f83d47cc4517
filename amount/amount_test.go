package amount

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseEther(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.5", "500000000000000000"},
		{"1.0", "1000000000000000000"},
		{"1", "1000000000000000000"},
		{"0", "0"},
		{".25", "250000000000000000"},
		{"2.", "2000000000000000000"},
		{"0.000000000000000001", "1"},
		{" 3.14 ", "3140000000000000000"},
	}
	for _, tc := range cases {
		got, err := ParseEther(tc.in)
		if err != nil {
			t.Fatalf("ParseEther(%q): unexpected error %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseEther(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseEtherRentTotal(t *testing.T) {
	price, err := ParseEther("0.5")
	if err != nil {
		t.Fatal(err)
	}
	deposit, err := ParseEther("1.0")
	if err != nil {
		t.Fatal(err)
	}
	total := new(big.Int).Add(price, deposit)
	if total.String() != "1500000000000000000" {
		t.Fatalf("rent total = %s, want 1500000000000000000", total)
	}
}

func TestParseEtherRejects(t *testing.T) {
	cases := []struct {
		in      string
		wantErr error
	}{
		{"", ErrEmptyAmount},
		{"   ", ErrEmptyAmount},
		{"abc", ErrMalformed},
		{"1.2.3", ErrMalformed},
		{".", ErrMalformed},
		{"-1", ErrNegativeAmount},
		{"0.0000000000000000001", ErrTooPrecise},
		{"1,5", ErrMalformed},
	}
	for _, tc := range cases {
		if _, err := ParseEther(tc.in); !errors.Is(err, tc.wantErr) {
			t.Fatalf("ParseEther(%q) error = %v, want %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestFormatEther(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"500000000000000000", "0.5"},
		{"1000000000000000000", "1"},
		{"1500000000000000000", "1.5"},
		{"0", "0"},
		{"1", "0.000000000000000001"},
	}
	for _, tc := range cases {
		wei, _ := new(big.Int).SetString(tc.in, 10)
		if got := FormatEther(wei); got != tc.want {
			t.Fatalf("FormatEther(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, s := range []string{"0.5", "12.345", "0.000001"} {
		wei, err := ParseEther(s)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ParseEther(FormatEther(wei))
		if err != nil {
			t.Fatal(err)
		}
		if wei.Cmp(back) != 0 {
			t.Fatalf("round trip mismatch for %q: %s vs %s", s, wei, back)
		}
	}
}
