package types

import (
	"encoding/json"
	"testing"
)

func TestParseClockTime(t *testing.T) {
	cases := map[string]int{
		"00:00":    0,
		"10:00":    600,
		"17:00:00": 1020,
		"23:59":    1439,
	}
	for raw, want := range cases {
		got, err := ParseClockTime(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.Minutes() != want {
			t.Fatalf("parse %q expected %d got %d", raw, want, got.Minutes())
		}
	}

	for _, bad := range []string{"", "24:00", "9:00", "10:60", "17:00:99", "ab:cd", "10"} {
		if _, err := ParseClockTime(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestClockTimeJSONRoundTrip(t *testing.T) {
	type payload struct {
		At ClockTime `json:"at"`
	}
	data, err := json.Marshal(payload{At: ClockTime(9*60 + 5)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"at":"09:05"}` {
		t.Fatalf("unexpected json %s", data)
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"at":"14:30"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.At.Minutes() != 870 {
		t.Fatalf("expected 870 minutes, got %d", got.At.Minutes())
	}
	if err := json.Unmarshal([]byte(`{"at":"25:00"}`), &got); err == nil {
		t.Fatal("expected invalid clock time to fail")
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2026-03-01"); err != nil {
		t.Fatalf("valid date rejected: %v", err)
	}
	if _, err := ParseDate("03/01/2026"); err == nil {
		t.Fatal("expected invalid layout to fail")
	}
}
