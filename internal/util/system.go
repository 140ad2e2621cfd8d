package util

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

var errNoSystemctl = errors.New("systemctl not available")

func IsRoot() bool {
	return os.Geteuid() == 0
}

func HasSystemctl() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func systemctl(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	if !HasSystemctl() {
		return "", errNoSystemctl
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	cmd.Stdout = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// ServiceIsActive asks systemd about a unit; false when it cannot tell.
func ServiceIsActive(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	// is-active exits non-zero for inactive units; the state is on stdout.
	state, _ := systemctl(ctx, 3*time.Second, "is-active", name)
	return state == "active"
}

func RestartService(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	_, err := systemctl(ctx, 10*time.Second, "restart", name)
	return err
}
