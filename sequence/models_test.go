package sequence

import (
	"errors"
	"testing"
)

func TestNumberString(t *testing.T) {
	tests := []struct {
		n    Number
		want string
	}{
		{Number{Prefix: "DEVIS", Year: 2025, Value: 1}, "DEVIS-2025-0001"},
		{Number{Prefix: "FACT", Year: 2024, Value: 42}, "FACT-2024-0042"},
		{Number{Prefix: "F", Year: 2026, Value: 9999}, "F-2026-9999"},
	}
	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	n, err := ParseNumber("DEVIS-2025-0017")
	if err != nil {
		t.Fatalf("ParseNumber: %v", err)
	}
	if n.Prefix != "DEVIS" || n.Year != 2025 || n.Value != 17 {
		t.Errorf("unexpected number: %+v", n)
	}

	for _, bad := range []string{"", "DEVIS-2025", "DEVIS-2025-17", "devis-2025-0001", "DEVIS-abcd-0001", "DEVIS-2025-0000", "A-B-2025-0001"} {
		if _, err := ParseNumber(bad); !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("ParseNumber(%q): expected ErrInvalidNumber, got %v", bad, err)
		}
	}
}

func TestCounterNext(t *testing.T) {
	c := NewCounter("usr_1", TypeQuote)

	n, c, ok := c.Next(2025)
	if !ok || n.String() != "DEVIS-2025-0001" || c.NextNumber != 2 {
		t.Fatalf("first allocation: %v %+v %v", n, c, ok)
	}

	n, c, _ = c.Next(2025)
	if n.Value != 2 || c.NextNumber != 3 {
		t.Fatalf("second allocation: %v %+v", n, c)
	}
}

func TestCounterYearRollover(t *testing.T) {
	c := Counter{Type: TypeQuote, Prefix: "DEVIS", Year: 2024, NextNumber: 7}

	n, c, ok := c.Next(2025)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if n.String() != "DEVIS-2025-0001" {
		t.Errorf("got %s", n)
	}
	if c.Year != 2025 || c.NextNumber != 2 {
		t.Errorf("unexpected counter: %+v", c)
	}
}

func TestCounterEarlierYearKeepsStoredYear(t *testing.T) {
	c := Counter{Type: TypeInvoice, Prefix: "FACT", Year: 2026, NextNumber: 2}

	n, c, ok := c.Next(2025)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if n.String() != "FACT-2026-0002" {
		t.Errorf("got %s", n)
	}
	if c.Year != 2026 || c.NextNumber != 3 {
		t.Errorf("counter moved back: %+v", c)
	}

	n, _, _ = c.Next(2026)
	if n.String() != "FACT-2026-0003" {
		t.Errorf("got %s", n)
	}
}

func TestCounterExhausted(t *testing.T) {
	c := Counter{Type: TypeInvoice, Prefix: "FACT", Year: 2025, NextNumber: MaxNumber}

	n, c, ok := c.Next(2025)
	if !ok || n.Value != MaxNumber {
		t.Fatalf("last number should be issued: %v %v", n, ok)
	}
	if _, _, ok := c.Next(2025); ok {
		t.Fatal("expected exhaustion")
	}
	if _, _, ok := c.Next(2024); ok {
		t.Fatal("an earlier year must not reopen an exhausted counter")
	}
	if _, _, ok := c.Next(2026); !ok {
		t.Fatal("a new year should restart the counter")
	}
}

func TestParseDocumentType(t *testing.T) {
	for in, want := range map[string]DocumentType{"invoice": TypeInvoice, " Quote ": TypeQuote} {
		got, err := ParseDocumentType(in)
		if err != nil || got != want {
			t.Errorf("ParseDocumentType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDocumentType("receipt"); !errors.Is(err, ErrInvalidDocumentType) {
		t.Errorf("expected ErrInvalidDocumentType, got %v", err)
	}
}

func TestValidatePrefix(t *testing.T) {
	for _, ok := range []string{"FACT", "DEVIS", "F2025", "A"} {
		if err := ValidatePrefix(ok); err != nil {
			t.Errorf("ValidatePrefix(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "fact", "FA-CT", "TOOLONGPREFIX1"} {
		if err := ValidatePrefix(bad); err == nil {
			t.Errorf("ValidatePrefix(%q): expected error", bad)
		}
	}
}
