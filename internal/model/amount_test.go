package model

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{"0", 0},
		{"0.01", 10_000},
		{"0.05", 50_000},
		{"0.1", 100_000},
		{".5", 500_000},
		{"2", 2 * MicroPerUnit},
		{"1.000001", MicroPerUnit + 1},
		{" 3.25 ", 3_250_000},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{
		"", "-0.01", "abc", "0.0000001", "1.2.3", "0.-1", "99999999999999999999",
		"1.+5", "+1", "+0.5", "1.", ".", "0x10", "1_000", "1.0 5",
	} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%q) succeeded", in)
		}
	}
}

func TestAmountString(t *testing.T) {
	tests := map[Amount]string{
		0:                "0",
		10_000:           "0.01",
		100_000:          "0.1",
		MicroPerUnit:     "1",
		MicroPerUnit + 1: "1.000001",
		-50_000:          "-0.05",
	}
	for in, want := range tests {
		if got := in.String(); got != want {
			t.Fatalf("Amount(%d).String() = %q, want %q", int64(in), got, want)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	var req RegisterMemberRequest
	if err := json.Unmarshal([]byte(`{"tier":"gold","amount":"0.05"}`), &req); err != nil {
		t.Fatalf("decode string amount: %v", err)
	}
	if req.Amount == nil || *req.Amount != MustParseAmount("0.05") {
		t.Fatalf("amount = %v", req.Amount)
	}
	req = RegisterMemberRequest{}
	if err := json.Unmarshal([]byte(`{"tier":"gold","amount":0.1}`), &req); err != nil {
		t.Fatalf("decode numeric amount: %v", err)
	}
	if req.Amount == nil || *req.Amount != MustParseAmount("0.1") {
		t.Fatalf("amount = %v", req.Amount)
	}
	if err := json.Unmarshal([]byte(`{"amount":true}`), &req); err == nil {
		t.Fatal("boolean amount accepted")
	}

	out, err := json.Marshal(MemberRejected{Identity: "a", RefundAmount: MustParseAmount("0.01")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"identity":"a","refund_amount":"0.01"}` {
		t.Fatalf("marshal = %s", out)
	}
}
