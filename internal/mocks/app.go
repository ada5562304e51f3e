// File: internal/mocks/app.go
package mocks

import (
	"time"
)

// Queries of the first built-in strategy of each target, which is where
// NewAppPage places its elements.
const (
	QueryCreateImage   = `button[aria-label="Create image"]`
	QueryCreateActive  = `button[aria-label*="Deselect Create image" i]`
	QueryTierIndicator = `button[aria-label*="mode picker" i]`
	QueryPrompt        = `div[contenteditable="true"][aria-label*="prompt" i]`
	QuerySubmit        = `button[aria-label="Send message"]`
	QueryLoading       = `button[aria-label*="Stop response" i]`
	QueryResult        = `img[alt*="AI generated" i]`
	QueryDownload      = `button[aria-label="Download full size image"]`
	QueryDialogClose   = `mat-dialog-container button[aria-label="Close"]`
	QuerySignInEmail   = `input[type="email"]`
)

// QueryTierOption is the test-id strategy of the menu entry for a tier label.
func QueryTierOption(slug string) string {
	return `[data-test-id="bard-mode-option-` + slug + `"]`
}

// AppScript describes how a page built by NewAppPage behaves.
type AppScript struct {
	// ActiveTier is the tier shown by the indicator before any switch.
	ActiveTier string
	// SwitchTo is the label the indicator shows after the top tier option is
	// clicked; empty means the switch has no effect.
	SwitchTo string
	// TopTierSlug names the tier option element, e.g. "pro".
	TopTierSlug string

	CreationModeActive bool
	NoTierIndicator    bool
	NoSubmitButton     bool
	Dialog             bool

	// ResultDelay is how long after submission the result image appears.
	ResultDelay time.Duration
	// NoResult keeps the result from ever appearing.
	NoResult bool
	// NoDownload keeps the download control from rendering.
	NoDownload bool
	// FileName and Image are what the download control emits.
	FileName string
	Image    []byte
}

// NewAppPage builds a FakePage that behaves like the application: entering
// image creation mode, switching tiers, and producing a downloadable result
// after submission.
func NewAppPage(id string, s AppScript) *FakePage {
	p := NewFakePage(id)
	if s.FileName == "" {
		s.FileName = "Gemini_Generated_Image.png"
	}

	if s.Dialog {
		dialog := Visible("dialog close")
		dialog.OnClick = func() { p.SetVisible(QueryDialogClose, false) }
		p.Add(QueryDialogClose, dialog)
	}

	if s.CreationModeActive {
		p.Add(QueryCreateActive, Visible("create image (active)"))
	} else {
		entry := Visible("create image")
		entry.OnClick = func() { p.Add(QueryCreateActive, Visible("create image (active)")) }
		p.Add(QueryCreateImage, entry)
	}

	if !s.NoTierIndicator {
		indicator := Visible("tier indicator")
		indicator.Text = s.ActiveTier
		indicator.OnClick = func() {
			option := Visible("tier option")
			option.OnClick = func() {
				if s.SwitchTo != "" {
					p.SetText(QueryTierIndicator, s.SwitchTo)
				}
				p.Remove(QueryTierOption(s.TopTierSlug))
			}
			p.Add(QueryTierOption(s.TopTierSlug), option)
		}
		p.Add(QueryTierIndicator, indicator)
	}

	p.Add(QueryPrompt, Visible("prompt"))

	submitted := func() {
		p.Add(QueryLoading, Visible("loading"))
		if s.NoResult {
			return
		}
		time.AfterFunc(s.ResultDelay, func() {
			p.SetVisible(QueryLoading, false)
			p.Add(QueryResult, Visible("result"))
			if !s.NoDownload {
				download := Visible("download")
				download.OnClick = p.DownloadOnClick(s.FileName, s.Image)
				p.Add(QueryDownload, download)
			}
		})
	}
	if !s.NoSubmitButton {
		submit := Visible("submit")
		submit.OnClick = submitted
		p.Add(QuerySubmit, submit)
	} else {
		p.OnKey = func(key string) {
			if key == "Enter" {
				submitted()
			}
		}
	}
	return p
}
