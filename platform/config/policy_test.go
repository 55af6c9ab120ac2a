package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPolicyEmptyPathReturnsDefaults(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.RiskThresholdMinutes != 15 {
		t.Fatalf("expected default risk threshold 15, got %d", policy.RiskThresholdMinutes)
	}
	if len(policy.BusinessHours) != 5 {
		t.Fatalf("expected 5 default business days, got %d", len(policy.BusinessHours))
	}
}

func TestLoadPolicyOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
riskThresholdMinutes: 20
riskPollInterval: 2m
businessHours:
  - day: saturday
    open: "09:00"
    close: "13:00"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.RiskThresholdMinutes != 20 {
		t.Fatalf("expected threshold 20, got %d", policy.RiskThresholdMinutes)
	}
	if policy.RiskPollInterval != 2*time.Minute {
		t.Fatalf("expected poll interval 2m, got %s", policy.RiskPollInterval)
	}
	if len(policy.BusinessHours) != 1 || policy.BusinessHours[0].Day != "saturday" {
		t.Fatalf("expected business hours replaced by saturday only, got %+v", policy.BusinessHours)
	}
	if policy.TrackingTokenTTL != 72*time.Hour {
		t.Fatalf("expected untouched default tracking TTL, got %s", policy.TrackingTokenTTL)
	}
}

func TestPolicyValidateRejectsInvertedHours(t *testing.T) {
	policy := DefaultPolicy()
	policy.BusinessHours = []BusinessDay{{Day: "monday", Open: "17:00", Close: "08:00"}}
	if err := policy.Validate(); err == nil {
		t.Fatal("expected inverted business hours to be rejected")
	}
}

func TestParseWeekday(t *testing.T) {
	d, ok := ParseWeekday(" Friday ")
	if !ok || d != time.Friday {
		t.Fatalf("expected Friday, got %v ok=%v", d, ok)
	}
	if _, ok := ParseWeekday("funday"); ok {
		t.Fatal("expected unknown weekday to fail")
	}
}
