package config_test

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/louisbranch/eatbot/internal/platform/config"
)

// os.Exit cannot be intercepted in-process, so the test re-runs itself.
func TestExitfPrintsAndExits(t *testing.T) {
	if os.Getenv("EATBOT_EXITF_CHILD") == "1" {
		config.Exitf("Error: %v", "dir or local-csv is required")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitfPrintsAndExits$")
	cmd.Env = append(os.Environ(), "EATBOT_EXITF_CHILD=1")

	out, err := cmd.CombinedOutput()

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %d", exitErr.ExitCode())
	}
	if !strings.Contains(string(out), "Error: dir or local-csv is required") {
		t.Fatalf("expected stderr to contain %q, got %q", "Error: dir or local-csv is required", string(out))
	}
}
