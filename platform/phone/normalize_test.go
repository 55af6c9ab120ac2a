package phone

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in, region, want string
		wantErr          bool
	}{
		{in: "(650) 253-0000", region: "US", want: "+16502530000"},
		{in: "+31 20 794 7200", region: "", want: "+31207947200"},
		{in: "020 794 7200", region: "NL", want: "+31207947200"},
		{in: "12", region: "US", wantErr: true},
		{in: "  ", region: "US", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in, tc.region)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeE164FallsBackToInput(t *testing.T) {
	if got := NormalizeE164(" not a number "); got != "not a number" {
		t.Fatalf("expected trimmed input, got %q", got)
	}
}
