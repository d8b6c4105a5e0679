package fleet

import (
	"fmt"
	"os/exec"
)

// ReservedBootstrapPort is treated as immutable infrastructure: it is
// never assigned to a Session, never started, never killed by the
// fleet's own restart logic.
const ReservedBootstrapPort = 9000

// LaunchChrome starts a fresh, isolated Chrome process for one Session:
// a dedicated profile directory, remote debugging on debugPort, and
// flags suppressing the first-run/update/notification/session-restore
// noise that would otherwise block or desynchronize automation.
func LaunchChrome(binary string, debugPort int, profileDir, appURL string) (*exec.Cmd, error) {
	if debugPort == ReservedBootstrapPort {
		return nil, fmt.Errorf("fleet: refusing to launch on reserved bootstrap port %d", ReservedBootstrapPort)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", debugPort),
		fmt.Sprintf("--user-data-dir=%s", profileDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-notifications",
		"--disable-popup-blocking",
		"--disable-session-crashed-bubble",
		"--disable-save-password-bubble",
		"--disable-infobars",
		"--disable-background-networking",
		"--disable-client-side-phishing-detection",
		"--disable-component-update",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		appURL,
	}

	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("fleet: launch chrome: %w", err)
	}
	return cmd, nil
}
