package document

import "testing"

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"UPLOADED", "PROCESSING", "PROCESSED", "ERROR"} {
		if _, err := ParseStatus(valid); err != nil {
			t.Errorf("ParseStatus(%q) returned error: %v", valid, err)
		}
	}
	if _, err := ParseStatus("PENDING"); err == nil {
		t.Error("ParseStatus accepted an unknown status")
	}
	if _, err := ParseStatus(""); err == nil {
		t.Error("ParseStatus accepted the empty string")
	}
}

func TestStatusForwardOnly(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusUploaded, StatusProcessing, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusError, true},
		{StatusError, StatusProcessing, true},

		{StatusUploaded, StatusProcessed, false},
		{StatusUploaded, StatusError, false},
		{StatusProcessing, StatusUploaded, false},
		{StatusProcessed, StatusProcessing, false},
		{StatusProcessed, StatusUploaded, false},
		{StatusProcessed, StatusError, false},
		{StatusError, StatusUploaded, false},
		{StatusError, StatusProcessed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusUploaded.Terminal() || StatusProcessing.Terminal() {
		t.Error("non-terminal status reported as terminal")
	}
	if !StatusProcessed.Terminal() || !StatusError.Terminal() {
		t.Error("terminal status not reported as terminal")
	}
}
