package platform

import "testing"

func TestFromEnv(t *testing.T) {
	for _, tc := range []struct {
		value string
		want  Platform
	}{
		{"native", Native},
		{"android", Native},
		{"ios", Native},
		{"web", Web},
		{"", Web},
		{"desktop", Web},
	} {
		t.Run("value="+tc.value, func(t *testing.T) {
			t.Setenv(EnvVar, tc.value)
			if got := fromEnv(); got != tc.want {
				t.Errorf("fromEnv() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSetWinsOverEnv(t *testing.T) {
	t.Setenv(EnvVar, "web")
	Set(Native)
	if got := Detect(); got != Native {
		t.Errorf("Detect() = %q after Set(Native)", got)
	}
	// Later calls must not flip the platform mid-process.
	Set(Web)
	if got := Detect(); got != Native {
		t.Errorf("Detect() = %q after second Set, want the first value", got)
	}
}

func TestPredicates(t *testing.T) {
	if !Native.IsNative() || Native.IsWeb() {
		t.Error("Native predicates wrong")
	}
	if !Web.IsWeb() || Web.IsNative() {
		t.Error("Web predicates wrong")
	}
}
