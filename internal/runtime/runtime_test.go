package runtime

import "testing"

func TestIsHostRuntimeFalseWhenEdgeMarkerSet(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "some-function")
	if IsHostRuntime() {
		t.Error("IsHostRuntime() = true with AWS_LAMBDA_FUNCTION_NAME set, want false")
	}
}

func TestIsHostRuntimeTrueInNormalProcess(t *testing.T) {
	for _, envVar := range edgeMarkerEnvVars {
		t.Setenv(envVar, "")
	}
	if !IsHostRuntime() {
		t.Error("IsHostRuntime() = false in a normal test process, want true")
	}
}

func TestCanBindLoopback(t *testing.T) {
	if !canBindLoopback() {
		t.Error("canBindLoopback() = false, want true in a sandboxed test process with loopback access")
	}
}
