package occ

import (
	"errors"
	"testing"
	"time"
)

func TestParseBasic(t *testing.T) {
	c, err := Parse("O:AAPL240119C00250000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Underlying != "AAPL" {
		t.Errorf("underlying = %q, want AAPL", c.Underlying)
	}
	if c.Right != Call {
		t.Errorf("right = %c, want C", c.Right)
	}
	if c.Strike != 250 {
		t.Errorf("strike = %v, want 250", c.Strike)
	}
	want := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	if !c.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", c.Expiry, want)
	}
}

func TestParseWithoutPrefix(t *testing.T) {
	c, err := Parse("SPY261218P00450500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Underlying != "SPY" || c.Right != Put {
		t.Errorf("got %+v", c)
	}
	if c.Strike != 450.5 {
		t.Errorf("strike = %v, want 450.5", c.Strike)
	}
}

func TestParseFractionalStrike(t *testing.T) {
	c, err := Parse("O:F240621C00012375")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Strike != 12.375 {
		t.Errorf("strike = %v, want 12.375", c.Strike)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"O:",
		"240119C00250000",       // no underlying
		"O:AAPL240119C0025000",  // strike too short
		"O:AAPL240119X00250000", // bad right
		"O:AAPL24A119C00250000", // letter in date
		"O:AAPL241319C00250000", // month 13
		"O:AAPL240132C00250000", // day 32
		"O:AAPL240119C0025000Z", // letter in strike
		"O:AAPL240119C002500001", // strike too long
	}
	for _, s := range cases {
		if _, err := Parse(s); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidSymbol", s, err)
		}
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	expiry := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	sym := Encode("NVDA", expiry, Call, 1150.5)
	c, err := Parse(sym)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", sym, err)
	}
	if c.Underlying != "NVDA" || c.Right != Call || c.Strike != 1150.5 || !c.Expiry.Equal(expiry) {
		t.Errorf("round trip mismatch: %+v", c)
	}
}
