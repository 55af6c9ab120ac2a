package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BusinessDay is the opening window for one weekday, in "15:04" local time.
type BusinessDay struct {
	Day   string `yaml:"day"`
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// DispatchPolicy holds the tunable dispatch rules. It is loaded from YAML
// so operations can change it without a rebuild.
type DispatchPolicy struct {
	BusinessHours         []BusinessDay `yaml:"businessHours"`
	TimeZone              string        `yaml:"timeZone"`
	RiskThresholdMinutes  int           `yaml:"riskThresholdMinutes"`
	RiskInitialDelay      time.Duration `yaml:"riskInitialDelay"`
	RiskPollInterval      time.Duration `yaml:"riskPollInterval"`
	EstimatedJobDuration  time.Duration `yaml:"estimatedJobDuration"`
	TrackingTokenTTL      time.Duration `yaml:"trackingTokenTTL"`
	TriageTokenTTL        time.Duration `yaml:"triageTokenTTL"`
	ProposalTTL           time.Duration `yaml:"proposalTTL"`
	RecurringHorizonDays  int           `yaml:"recurringHorizonDays"`
	RecurringCronSpec     string        `yaml:"recurringCronSpec"`
	ProactiveHighPriority bool          `yaml:"proactiveHighPriority"`
}

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() DispatchPolicy {
	weekdays := []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	hours := make([]BusinessDay, 0, len(weekdays))
	for _, d := range weekdays {
		hours = append(hours, BusinessDay{Day: d, Open: "08:00", Close: "17:00"})
	}

	return DispatchPolicy{
		BusinessHours:         hours,
		TimeZone:              "UTC",
		RiskThresholdMinutes:  15,
		RiskInitialDelay:      10 * time.Second,
		RiskPollInterval:      5 * time.Minute,
		EstimatedJobDuration:  90 * time.Minute,
		TrackingTokenTTL:      72 * time.Hour,
		TriageTokenTTL:        7 * 24 * time.Hour,
		ProposalTTL:           30 * time.Minute,
		RecurringHorizonDays:  30,
		RecurringCronSpec:     "0 2 * * *",
		ProactiveHighPriority: true,
	}
}

// LoadPolicy reads a YAML policy file on top of DefaultPolicy.
// An empty path returns the defaults.
func LoadPolicy(path string) (DispatchPolicy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return DispatchPolicy{}, fmt.Errorf("read dispatch policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return DispatchPolicy{}, fmt.Errorf("parse dispatch policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return DispatchPolicy{}, err
	}
	return policy, nil
}

// Validate checks business hours are parseable and thresholds are sane.
func (p DispatchPolicy) Validate() error {
	if _, err := time.LoadLocation(p.TimeZone); err != nil {
		return fmt.Errorf("dispatch policy: bad time zone %q: %w", p.TimeZone, err)
	}
	for _, d := range p.BusinessHours {
		if _, ok := ParseWeekday(d.Day); !ok {
			return fmt.Errorf("dispatch policy: unknown weekday %q", d.Day)
		}
		open, err := time.Parse("15:04", d.Open)
		if err != nil {
			return fmt.Errorf("dispatch policy: bad open time for %s: %w", d.Day, err)
		}
		closing, err := time.Parse("15:04", d.Close)
		if err != nil {
			return fmt.Errorf("dispatch policy: bad close time for %s: %w", d.Day, err)
		}
		if !closing.After(open) {
			return fmt.Errorf("dispatch policy: %s closes before it opens", d.Day)
		}
	}
	if p.RiskThresholdMinutes <= 0 {
		return fmt.Errorf("dispatch policy: riskThresholdMinutes must be positive")
	}
	if p.RiskPollInterval <= 0 {
		return fmt.Errorf("dispatch policy: riskPollInterval must be positive")
	}
	return nil
}

// ParseWeekday maps an English weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, true
		}
	}
	return time.Sunday, false
}

// Location is the zone business hours are written in. Unknown zones fall
// back to UTC.
func (p DispatchPolicy) Location() *time.Location {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
