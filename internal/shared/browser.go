package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"slices"
)

// openers maps GOOS to the command that hands a URL to the desktop.
var openers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

var (
	getRuntime   = func() string { return runtime.GOOS }
	startCommand = func(name string, args ...string) error { return exec.Command(name, args...).Start() }
)

// OpenURL opens a remote http(s) link, such as a challenge QR image or a task's source video, in the
// default browser. It does not wait for the browser to exit.
func OpenURL(link string) error {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not an http(s) URL: %q", ErrInvalidArgument, link)
	}

	opener, ok := openers[getRuntime()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, getRuntime())
	}

	args := append(slices.Clone(opener[1:]), u.String())
	if err := startCommand(opener[0], args...); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
