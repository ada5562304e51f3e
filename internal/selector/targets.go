// internal/selector/targets.go
package selector

import (
	"fmt"
	"sort"
	"strings"
)

// Names of the logical targets. They double as the keys of the "selectors"
// configuration section.
const (
	ImageCreationEntry  = "image_creation_entry"
	ImageCreationActive = "image_creation_active"
	TierIndicator       = "tier_indicator"
	TierOption          = "tier_option"
	PromptInput         = "prompt_input"
	SubmitButton        = "submit_button"
	LoadingIndicator    = "loading_indicator"
	ResultImage         = "result_image"
	DownloadButton      = "download_button"
	SignInSignal        = "sign_in_signal"
	AppShell            = "app_shell"
	DismissDialog       = "dismiss_dialog"
)

// builtin lists the strategies for every static target. Order is
// accessible name, test id, class, visible text, then structure.
var builtin = map[string][]Strategy{
	ImageCreationEntry: {
		CSS(`button[aria-label="Create image"]`),
		CSS(`button[aria-label*="Create image" i]`),
		CSS(`[data-test-id="image-generation-button"]`),
		CSS(`toolbox-drawer-item button[aria-label*="image" i]`),
		Text("button", "Create image"),
		Text("button", "Create images"),
		XPath(`//toolbox-drawer//button[.//mat-icon[@fonticon="image" or @data-mat-icon-name="image"]]`),
	},
	ImageCreationActive: {
		CSS(`button[aria-label*="Deselect Create image" i]`),
		CSS(`button[aria-pressed="true"][aria-label*="image" i]`),
		CSS(`[data-test-id="image-generation-button"][aria-pressed="true"]`),
		CSS(`.toolbox-drawer-item-deselect-button`),
	},
	TierIndicator: {
		CSS(`button[aria-label*="mode picker" i]`),
		CSS(`[data-test-id="bard-mode-menu-button"]`),
		CSS(`button.input-area-switch`),
		CSS(`.logo-pill-label-container`),
		XPath(`//input-area-v2//button[contains(@class, "mode") or contains(@class, "model")]`),
	},
	PromptInput: {
		CSS(`div[contenteditable="true"][aria-label*="prompt" i]`),
		CSS(`rich-textarea div.ql-editor[contenteditable="true"]`),
		CSS(`[data-test-id="chat-input"] [contenteditable="true"]`),
		CSS(`div.ql-editor[contenteditable="true"]`),
		CSS(`[role="textbox"][contenteditable="true"]`),
		XPath(`//rich-textarea//*[@contenteditable="true"]`),
		CSS(`textarea`),
	},
	SubmitButton: {
		CSS(`button[aria-label="Send message"]`),
		CSS(`button[aria-label*="Send" i]:not([aria-label*="feedback" i])`),
		CSS(`[data-test-id="send-button"]`),
		CSS(`button.send-button`),
		Text("button", "Send"),
		XPath(`//input-area-v2//button[.//mat-icon[@fonticon="send" or @data-mat-icon-name="send"]]`),
	},
	LoadingIndicator: {
		CSS(`button[aria-label*="Stop response" i]`),
		CSS(`[data-test-id="loading-indicator"]`),
		CSS(`.loading-content-spinner-container`),
		CSS(`model-response [role="progressbar"]`),
		CSS(`mat-progress-bar`),
	},
	ResultImage: {
		CSS(`img[alt*="AI generated" i]`),
		CSS(`[data-test-id="generated-image"] img`),
		CSS(`generated-image img.image.loaded`),
		CSS(`single-image img.image`),
		XPath(`(//model-response)[last()]//img[starts-with(@src, "blob:") or starts-with(@src, "https://lh3.googleusercontent.com/")]`),
	},
	DownloadButton: {
		CSS(`button[aria-label="Download full size image"]`),
		CSS(`button[aria-label*="Download" i]`),
		CSS(`[data-test-id="download-generated-image-button"]`),
		CSS(`download-generated-image-button button`),
		Text("button", "Download"),
		XPath(`//generated-image//button[.//mat-icon[@fonticon="download" or @data-mat-icon-name="download"]]`),
	},
	SignInSignal: {
		CSS(`input[type="email"]`),
		CSS(`input[name="identifier"]`),
		CSS(`a[aria-label^="Sign in" i]`),
		CSS(`button[aria-label^="Sign in" i]`),
		ExactText("a", "Sign in"),
		ExactText("button", "Sign in"),
	},
	AppShell: {
		CSS(`rich-textarea`),
		CSS(`[data-test-id="chat-history-container"]`),
		CSS(`bard-sidenav`),
		CSS(`input-area-v2`),
	},
	DismissDialog: {
		CSS(`mat-dialog-container button[aria-label="Close"]`),
		CSS(`button[aria-label="Dismiss"]`),
		ExactText("button", "Got it"),
		ExactText("button", "No thanks"),
		ExactText("button", "Not now"),
		ExactText("button", "Dismiss"),
	},
}

// tierOptionStrategies locates the menu entry for one tier label.
func tierOptionStrategies(label string) []Strategy {
	lit := xpathLiteral(label)
	slug := strings.ToLower(strings.ReplaceAll(label, " ", "-"))
	return []Strategy{
		XPath(fmt.Sprintf(`//*[@role="menuitemradio" or @role="menuitem" or @role="option"][.//*[normalize-space(text())=%s]]`, lit)),
		CSS(fmt.Sprintf(`[data-test-id="bard-mode-option-%s"]`, slug)),
		XPath(fmt.Sprintf(`//*[@role="menuitemradio" or @role="menuitem" or @role="option"][starts-with(normalize-space(.), %s)]`, lit)),
		ExactText("button", label),
	}
}

// Registry hands out targets, with configured override strategies placed ahead
// of the built-in ones.
type Registry struct {
	overrides map[string][]Strategy
}

// NewRegistry parses overrides keyed by target name. Unknown names are rejected
// so that a typo in the config file does not silently do nothing.
func NewRegistry(overrides map[string][]string) (*Registry, error) {
	r := &Registry{overrides: make(map[string][]Strategy)}
	for name, values := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := builtin[key]; !ok && key != TierOption {
			return nil, fmt.Errorf("unknown selector target %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		for _, raw := range values {
			s, err := ParseStrategy(raw)
			if err != nil {
				return nil, fmt.Errorf("selectors.%s: %w", key, err)
			}
			r.overrides[key] = append(r.overrides[key], s)
		}
	}
	return r, nil
}

// Names lists every configurable target name, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin)+1)
	for name := range builtin {
		names = append(names, name)
	}
	names = append(names, TierOption)
	sort.Strings(names)
	return names
}

// Target returns the named static target. It panics on an unknown name, which
// is a programming error.
func (r *Registry) Target(name string) Target {
	strategies, ok := builtin[name]
	if !ok {
		panic(fmt.Sprintf("selector: unknown target %q", name))
	}
	return Target{Name: name, Strategies: r.merge(name, strategies)}
}

// Tier returns the target for the menu entry of the given tier label.
// Overrides for tier options may use "{label}" as a placeholder.
func (r *Registry) Tier(label string) Target {
	var own []Strategy
	for _, s := range r.overrides[TierOption] {
		own = append(own, s)
	}
	own = expandLabel(own, label)
	return Target{
		Name:       TierOption,
		Strategies: append(own, tierOptionStrategies(label)...),
	}
}

func (r *Registry) merge(name string, strategies []Strategy) []Strategy {
	own := r.overrides[name]
	out := make([]Strategy, 0, len(own)+len(strategies))
	out = append(out, own...)
	return append(out, strategies...)
}

// expandLabel re-parses overrides that contain the {label} placeholder.
func expandLabel(strategies []Strategy, label string) []Strategy {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if !strings.Contains(s.Description, "{label}") {
			out = append(out, s)
			continue
		}
		raw := strings.ReplaceAll(s.Description, "{label}", label)
		// Descriptions of parsed strategies are themselves valid values.
		if parsed, err := ParseStrategy(raw); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}
