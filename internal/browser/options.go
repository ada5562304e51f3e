// internal/browser/options.go
package browser

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// launchFlags are the command-line switches for one launch, keyed by flag name.
// A false value removes a switch set by chromedp's defaults.
func launchFlags(cfg config.BrowserConfig, opts LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"disable-blink-features":   "AutomationControlled",
		"enable-automation":        false,
		"disable-infobars":         true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"password-store":           "basic",
		"disable-features":         "Translate,OptimizationHints,MediaRouter",
		"disable-popup-blocking":   true,
		"disable-dev-shm-usage":    true,
	}

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}

	if opts.Headless {
		flags["headless"] = "new"
	} else {
		// Undo the switches chromedp.Headless adds to the defaults.
		flags["headless"] = false
		flags["hide-scrollbars"] = false
		flags["mute-audio"] = false
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for one launch.
func AllocatorOptions(cfg config.BrowserConfig, opts LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))

	for name, value := range launchFlags(cfg, opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ExecPath))
	}
	return allocOpts
}

// splitArg turns "--name=value" or "--name" into a chromedp flag pair.
func splitArg(arg string) (string, interface{}) {
	name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	if !ok {
		return name, true
	}
	return name, value
}

// PersonaFor derives the persona applied to every page from the browser config.
func PersonaFor(cfg config.BrowserConfig) schemas.Persona {
	p := schemas.DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		p.Width, p.Height = cfg.ViewportWidth, cfg.ViewportHeight
	}
	return p
}
