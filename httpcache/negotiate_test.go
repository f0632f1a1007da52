package httpcache

import (
	"strings"
	"testing"

	"github.com/goliatone/go-report-cache/pkg/testsupport"
)

type summary struct {
	Total    int            `json:"total"`
	Branches map[string]int `json:"branches"`
}

func TestNegotiate_StableFingerprint(t *testing.T) {
	a := map[string]any{"total": 10, "branches": map[string]int{"b1": 4, "b2": 6}}
	b := map[string]any{"branches": map[string]int{"b2": 6, "b1": 4}, "total": 10}

	ra, err := Negotiate("", a)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	rb, err := Negotiate("", b)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}

	if ra.Fingerprint != rb.Fingerprint {
		t.Errorf("equal payloads produced %s and %s", ra.Fingerprint, rb.Fingerprint)
	}
	if !strings.HasPrefix(ra.Fingerprint, `"`) || !strings.HasSuffix(ra.Fingerprint, `"`) || len(ra.Fingerprint) != 18 {
		t.Errorf("Fingerprint = %s, want a quoted 16 char hex tag", ra.Fingerprint)
	}
	if ra.NotModified {
		t.Error("expected NotModified false without a previous tag")
	}

	structured, err := Negotiate("", summary{Total: 10, Branches: map[string]int{"b1": 4, "b2": 6}})
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if structured.Fingerprint != ra.Fingerprint {
		t.Errorf("struct and map with the same JSON produced %s and %s", structured.Fingerprint, ra.Fingerprint)
	}
}

func TestNegotiate_DifferentPayloads(t *testing.T) {
	ra, _ := Negotiate("", summary{Total: 10})
	rb, _ := Negotiate("", summary{Total: 11})

	if ra.Fingerprint == rb.Fingerprint {
		t.Error("different payloads share a fingerprint")
	}
}

func TestNegotiate_NotModified(t *testing.T) {
	payload := summary{Total: 3, Branches: map[string]int{"b1": 3}}
	first, err := Negotiate("", payload)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	tag := first.Fingerprint

	tests := []struct {
		name     string
		previous string
		want     bool
	}{
		{name: "exact", previous: tag, want: true},
		{name: "weak", previous: "W/" + tag, want: true},
		{name: "list", previous: `"other", ` + tag, want: true},
		{name: "wildcard", previous: "*", want: true},
		{name: "stale", previous: `"0000000000000000"`, want: false},
		{name: "empty", previous: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(tt.previous, payload)
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got.NotModified != tt.want {
				t.Errorf("NotModified = %v, want %v", got.NotModified, tt.want)
			}
			if got.Fingerprint != tag {
				t.Errorf("Fingerprint = %s, want %s", got.Fingerprint, tag)
			}
		})
	}
}

func TestNegotiate_UnsupportedPayload(t *testing.T) {
	if _, err := Negotiate("", make(chan int)); err == nil {
		t.Error("expected error for a payload that cannot be encoded")
	}
}

func TestFingerprintMatchesEncode(t *testing.T) {
	payload := map[string]string{"b": "<2>", "a": "1"}

	body, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(body) != `{"a":"1","b":"<2>"}` {
		t.Errorf("Encode() = %s", body)
	}

	result, _ := Negotiate("", payload)
	if result.Fingerprint != Fingerprint(body) {
		t.Errorf("Negotiate() fingerprint %s does not match Fingerprint(Encode()) %s", result.Fingerprint, Fingerprint(body))
	}
}

func TestEncode_Golden(t *testing.T) {
	type day struct {
		Date     string `json:"date"`
		BranchID string `json:"branchId"`
	}
	payload := map[string]any{
		"totals": map[string]any{"transactions": 3, "gross": "35.25"},
		"report": "sales-summary",
		"days": []day{
			{Date: "2024-01-01", BranchID: "b1"},
			{Date: "2024-01-02", BranchID: "b2"},
		},
	}

	body, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	testsupport.AssertGolden(t, testsupport.GoldenPath("sales_summary.json"), body)
}
