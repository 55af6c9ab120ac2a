package email

import (
	"strings"
	"testing"
)

func TestRenderJobAssigned(t *testing.T) {
	out, err := renderEmailTemplate("job_assigned.html", jobAssignedEmailData{
		baseEmailData: baseEmailData{Title: "New job assigned", Heading: "New job assigned"},
		JobAssignedMail: JobAssignedMail{
			TechnicianName: "Ann",
			JobTitle:       "Fix <boiler>",
			Address:        "1 Main St",
			Interrupted:    "Service visit",
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Hi Ann", "Fix &lt;boiler&gt;", "1 Main St", "Service visit"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in rendered mail", want)
		}
	}
	if strings.Contains(out, "Scheduled:") {
		t.Fatalf("empty schedule should be omitted")
	}
}

func TestRenderProfileReview(t *testing.T) {
	out, err := renderEmailTemplate("profile_review.html", profileReviewEmailData{
		baseEmailData:     baseEmailData{Title: "x", Heading: "x"},
		ProfileReviewMail: ProfileReviewMail{TechnicianName: "Bob", Approved: false, Notes: "keep the old phone"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "was not approved") || !strings.Contains(out, "keep the old phone") {
		t.Fatalf("unexpected body: %s", out)
	}
}

func TestMessageRejectsBadAddress(t *testing.T) {
	s := NewSMTPSender("localhost", 25, "", "", "dispatch@example.com", "Dispatch")
	if _, err := s.message("not an address", "subject", "<p>x</p>"); err == nil {
		t.Fatalf("expected invalid recipient to fail")
	}
	if _, err := s.message("ann@example.com", "subject", "<p>x</p>"); err != nil {
		t.Fatalf("valid message: %v", err)
	}
}
