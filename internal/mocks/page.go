// File: internal/mocks/page.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

// ErrPageClosed is returned by every FakePage operation after Close.
var ErrPageClosed = errors.New("fake page closed")

// FakeElement is an in-memory DOM element. Its fields are guarded by the
// owning FakePage, so mutate them through the page helpers once the page is shared.
type FakeElement struct {
	Name     string
	Visible  bool
	Disabled bool
	Text     string
	Value    string
	// ClickErr is returned by Click (not ClickDOM), simulating an intercepted pointer click.
	ClickErr error
	// OnClick runs after a successful Click or ClickDOM, without the page lock held.
	OnClick func()
}

// Description implements schemas.ElementHandle.
func (e *FakeElement) Description() string { return e.Name }

// Visible returns a visible, enabled element.
func Visible(name string) *FakeElement { return &FakeElement{Name: name, Visible: true} }

// Hidden returns an element that is present but not rendered.
func Hidden(name string) *FakeElement { return &FakeElement{Name: name} }

// FakePage is a scriptable schemas.Page. Elements are registered by the exact
// query string of the descriptor that should find them.
type FakePage struct {
	mu       sync.Mutex
	id       string
	url      string
	elements map[string][]*FakeElement
	queryErr map[string]error
	closed   bool

	downloadDir string

	// QueryDelay is slept by QueryAll, honoring ctx.
	QueryDelay time.Duration
	// OnNavigate maps a requested address to the address the page lands on.
	OnNavigate func(url string) string
	// NavigateErr fails Navigate.
	NavigateErr error
	// OnKey runs after PressKey, without the page lock held.
	OnKey func(key string)

	clicks  []string
	typed   []string
	keys    []string
	hovers  []string
	queries []string
}

var _ schemas.Page = (*FakePage)(nil)

// NewFakePage creates an empty page.
func NewFakePage(id string) *FakePage {
	return &FakePage{
		id:       id,
		url:      "about:blank",
		elements: make(map[string][]*FakeElement),
		queryErr: make(map[string]error),
	}
}

// Add registers elements under query.
func (p *FakePage) Add(query string, els ...*FakeElement) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[query] = append(p.elements[query], els...)
	return p
}

// Remove drops every element registered under query.
func (p *FakePage) Remove(query string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, query)
}

// SetVisible toggles visibility of every element under query.
func (p *FakePage) SetVisible(query string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements[query] {
		el.Visible = visible
	}
}

// SetText replaces the text content of every element under query.
func (p *FakePage) SetText(query, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements[query] {
		el.Text = text
	}
}

// Value returns the value of the first element under query.
func (p *FakePage) Value(query string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if els := p.elements[query]; len(els) > 0 {
		return els[0].Value
	}
	return ""
}

// FailQuery makes QueryAll return err for query.
func (p *FakePage) FailQuery(query string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErr[query] = err
}

// SetURL moves the page without a navigation.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Clicks returns element names in click order.
func (p *FakePage) Clicks() []string { return p.snapshot(&p.clicks) }

// Typed returns every text inserted with TypeText.
func (p *FakePage) Typed() []string { return p.snapshot(&p.typed) }

// Keys returns every key pressed.
func (p *FakePage) Keys() []string { return p.snapshot(&p.keys) }

// Hovers returns element names in hover order.
func (p *FakePage) Hovers() []string { return p.snapshot(&p.hovers) }

// Queries returns every query string passed to QueryAll.
func (p *FakePage) Queries() []string { return p.snapshot(&p.queries) }

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// DownloadDir is the directory the last ExpectDownload routed downloads to.
func (p *FakePage) DownloadDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloadDir
}

// EmitDownload writes a file into the routed download directory, as a browser would.
func (p *FakePage) EmitDownload(name string, data []byte) error {
	dir := p.DownloadDir()
	if dir == "" {
		return errors.New("no download expected")
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// DownloadOnClick returns an OnClick hook that emits a download.
func (p *FakePage) DownloadOnClick(name string, data []byte) func() {
	return func() { _ = p.EmitDownload(name, data) }
}

func (p *FakePage) snapshot(s *[]string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), (*s)...)
}

func (p *FakePage) element(h schemas.ElementHandle) (*FakeElement, error) {
	el, ok := h.(*FakeElement)
	if !ok {
		return nil, fmt.Errorf("foreign element handle %T", h)
	}
	if p.closed {
		return nil, ErrPageClosed
	}
	return el, nil
}

func (p *FakePage) ID() string { return p.id }

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if p.OnNavigate != nil {
		url = p.OnNavigate(url)
	}
	p.url = url
	return nil
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPageClosed
	}
	return p.url, nil
}

func (p *FakePage) QueryAll(ctx context.Context, d schemas.Descriptor) ([]schemas.ElementHandle, error) {
	if p.QueryDelay > 0 {
		select {
		case <-time.After(p.QueryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, d.Query)
	if p.closed {
		return nil, ErrPageClosed
	}
	if err := p.queryErr[d.Query]; err != nil {
		return nil, err
	}
	var out []schemas.ElementHandle
	for _, el := range p.elements[d.Query] {
		out = append(out, el)
	}
	return out, nil
}

func (p *FakePage) IsVisible(ctx context.Context, h schemas.ElementHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return false, err
	}
	return el.Visible, nil
}

func (p *FakePage) IsDisabled(ctx context.Context, h schemas.ElementHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return false, err
	}
	return el.Disabled, nil
}

func (p *FakePage) TextContent(ctx context.Context, h schemas.ElementHandle) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (p *FakePage) Click(ctx context.Context, h schemas.ElementHandle) error {
	return p.click(ctx, h, false)
}

func (p *FakePage) ClickDOM(ctx context.Context, h schemas.ElementHandle) error {
	return p.click(ctx, h, true)
}

func (p *FakePage) click(ctx context.Context, h schemas.ElementHandle, dom bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	el, err := p.element(h)
	if err == nil && !dom && el.ClickErr != nil {
		err = el.ClickErr
	}
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, el.Name)
	hook := el.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (p *FakePage) Hover(ctx context.Context, h schemas.ElementHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return err
	}
	p.hovers = append(p.hovers, el.Name)
	return nil
}

func (p *FakePage) Clear(ctx context.Context, h schemas.ElementHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

func (p *FakePage) TypeText(ctx context.Context, h schemas.ElementHandle, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(h)
	if err != nil {
		return err
	}
	el.Value += text
	p.typed = append(p.typed, text)
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	p.keys = append(p.keys, key)
	hook := p.OnKey
	p.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

func (p *FakePage) ExpectDownload(ctx context.Context, dir string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	p.downloadDir = dir
	return func() {}, nil
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
