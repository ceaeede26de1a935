package id

import "testing"

func TestNormalizeAmountBaseUnits(t *testing.T) {
	base, decimal, err := NormalizeAmount("1500000", "", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount: %v", err)
	}
	if base != "1500000" || decimal != "1.5" {
		t.Fatalf("unexpected: base=%q decimal=%q", base, decimal)
	}
}

func TestNormalizeAmountDecimal(t *testing.T) {
	base, decimal, err := NormalizeAmount("", "10.25", 6)
	if err != nil {
		t.Fatalf("NormalizeAmount: %v", err)
	}
	if base != "10250000" || decimal != "10.25" {
		t.Fatalf("unexpected: base=%q decimal=%q", base, decimal)
	}
}

func TestNormalizeAmountRejectsBoth(t *testing.T) {
	if _, _, err := NormalizeAmount("1", "1.0", 6); err == nil {
		t.Fatal("expected error when both forms supplied")
	}
	if _, _, err := NormalizeAmount("", "", 6); err == nil {
		t.Fatal("expected error when neither form supplied")
	}
}

func TestNormalizeAmountRejectsExcessPrecision(t *testing.T) {
	if _, _, err := NormalizeAmount("", "1.1234567", 6); err == nil {
		t.Fatal("expected error for more fractional digits than decimals")
	}
}

func TestNormalizeAmountRejectsNegative(t *testing.T) {
	if _, _, err := NormalizeAmount("-5", "", 6); err == nil {
		t.Fatal("expected error for negative base units")
	}
}

func TestFormatDecimalZeroPadding(t *testing.T) {
	if got := FormatDecimal("42", 6); got != "0.000042" {
		t.Fatalf("FormatDecimal = %q", got)
	}
	if got := FormatDecimal("1000000", 6); got != "1" {
		t.Fatalf("FormatDecimal = %q", got)
	}
}
