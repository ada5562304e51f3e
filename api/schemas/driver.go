package schemas

import (
	"context"
	"fmt"
)

// -- UI Driver capability interfaces --
//
// The automation core never talks to a browser library directly. Everything it
// needs from the driven page is expressed here, so the engine can be exercised
// against in-memory fakes.

// QueryKind selects the query language of a Descriptor.
type QueryKind int

const (
	ByCSS QueryKind = iota
	ByXPath
)

func (k QueryKind) String() string {
	switch k {
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	default:
		return fmt.Sprintf("QueryKind(%d)", int(k))
	}
}

// Descriptor is a driver-level element query.
type Descriptor struct {
	Query string
	By    QueryKind
}

// CSS returns a CSS selector descriptor.
func CSS(query string) Descriptor { return Descriptor{Query: query, By: ByCSS} }

// XPath returns an XPath expression descriptor.
func XPath(query string) Descriptor { return Descriptor{Query: query, By: ByXPath} }

func (d Descriptor) String() string {
	return d.By.String() + ":" + d.Query
}

// ElementHandle is an opaque reference to a DOM element on one Page.
// Handles are only meaningful to the Page that returned them.
type ElementHandle interface {
	Description() string
}

// Page is one addressable, navigable browser surface (a tab).
type Page interface {
	ID() string
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// QueryAll returns every element currently matching d without waiting.
	// No match is an empty slice, not an error.
	QueryAll(ctx context.Context, d Descriptor) ([]ElementHandle, error)
	// IsVisible reports a non-zero rendered box that is not display:none or visibility:hidden.
	IsVisible(ctx context.Context, h ElementHandle) (bool, error)
	IsDisabled(ctx context.Context, h ElementHandle) (bool, error)
	TextContent(ctx context.Context, h ElementHandle) (string, error)
	// Click dispatches a real mouse click at the element's center.
	Click(ctx context.Context, h ElementHandle) error
	// ClickDOM invokes the element's click() from script, bypassing overlays.
	ClickDOM(ctx context.Context, h ElementHandle) error
	Hover(ctx context.Context, h ElementHandle) error
	// Clear removes any existing value or editable content of the element.
	Clear(ctx context.Context, h ElementHandle) error
	// TypeText focuses the element and inserts text.
	TypeText(ctx context.Context, h ElementHandle, text string) error
	// PressKey sends a key press to the focused element ("Enter", "Escape").
	PressKey(ctx context.Context, key string) error
	// ExpectDownload routes the next download into dir. The returned release
	// func must be called once the download has been observed or abandoned.
	ExpectDownload(ctx context.Context, dir string) (release func(), err error)
	Close(ctx context.Context) error
}

// Session owns one browser process bound to one persistent profile directory.
// A Session handed to a caller is fully usable until Close.
type Session interface {
	ID() string
	ProfileDir() string
	Headless() bool
	// Primary is the page opened at launch.
	Primary() Page
	// NewPage opens an additional page sharing the session's login state.
	NewPage(ctx context.Context) (Page, error)
	// Close is idempotent; closing a closed session is a no-op.
	Close(ctx context.Context) error
}
