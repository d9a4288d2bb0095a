package domain

import "testing"

func TestErrorKindValues(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindAuth, "auth_error"},
		{KindRateLimit, "rate_limit"},
		{KindAPI, "api_error"},
		{KindTimeout, "timeout"},
		{KindNetwork, "network_error"},
		{KindConfiguration, "configuration_error"},
		{KindAllAPIsFailed, "all_apis_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.kind) != tt.expected {
				t.Errorf("got %q, want %q", tt.kind, tt.expected)
			}
		})
	}
	if len(AllErrorKinds) != len(tests) {
		t.Errorf("AllErrorKinds has %d entries, want %d", len(AllErrorKinds), len(tests))
	}
}

func TestOutcome(t *testing.T) {
	ok := Success("answer")
	if !ok.OK || ok.Failed() || ok.Text() != "answer" || ok.Kind != "" {
		t.Errorf("unexpected success outcome: %+v", ok)
	}
	bad := Failure(KindTimeout, "timed out")
	if bad.OK || !bad.Failed() || bad.Text() != "timed out" || bad.Kind != KindTimeout {
		t.Errorf("unexpected failure outcome: %+v", bad)
	}
	if (Outcome{}).OK {
		t.Errorf("zero outcome must not be a success")
	}
}
