package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	xvfbScreen  = "1920x1080x24"
	xvfbStartup = 5 * time.Second
)

var x11SocketDir = "/tmp/.X11-unix"

// displaySocket maps an X display name such as ":99" or ":99.0" to its
// local socket path.
func displaySocket(display string) (string, error) {
	num, ok := strings.CutPrefix(display, ":")
	if !ok {
		return "", fmt.Errorf("display %q is not local", display)
	}
	num, _, _ = strings.Cut(num, ".")
	if _, err := strconv.Atoi(num); err != nil {
		return "", fmt.Errorf("display %q: bad number", display)
	}
	return x11SocketDir + "/X" + num, nil
}

// startXvfb makes sure the headful display exists. A display that is
// already up (an Xvfb run by the host, or left from a previous recycle) is
// reused and never killed by the manager.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	sock, err := displaySocket(display)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err == nil {
		m.cfg.Logger.Info("browser: reusing x display", "display", display)
		return nil
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", xvfbScreen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	deadline := time.Now().Add(xvfbStartup)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) || time.Now().After(deadline) {
			m.stopXvfb()
			return fmt.Errorf("xvfb %s not ready: %w", display, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb kills the display only if this manager started it.
func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		p.Kill()
		m.xvfb.Wait()
	}
	m.xvfb = nil
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
}
