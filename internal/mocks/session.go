// File: internal/mocks/session.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/browser"
)

// FakeSession is an in-memory schemas.Session.
type FakeSession struct {
	id         string
	profileDir string
	headless   bool
	primary    *FakePage

	// NewPageFunc builds pages for NewPage; defaults to empty pages.
	NewPageFunc func(index int) *FakePage
	NewPageErr  error
	CloseErr    error

	mu     sync.Mutex
	pages  []*FakePage
	closes int
}

var _ schemas.Session = (*FakeSession)(nil)

// NewFakeSession creates a session around primary.
func NewFakeSession(id, profileDir string, headless bool, primary *FakePage) *FakeSession {
	return &FakeSession{id: id, profileDir: profileDir, headless: headless, primary: primary}
}

func (s *FakeSession) ID() string { return s.id }
func (s *FakeSession) ProfileDir() string { return s.profileDir }
func (s *FakeSession) Headless() bool { return s.headless }
func (s *FakeSession) Primary() schemas.Page { return s.primary }
func (s *FakeSession) PrimaryFake() *FakePage { return s.primary }

func (s *FakeSession) NewPage(ctx context.Context) (schemas.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return nil, errors.New("fake session closed")
	}
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	index := len(s.pages) + 1
	var p *FakePage
	if s.NewPageFunc != nil {
		p = s.NewPageFunc(index)
	} else {
		p = NewFakePage(fmt.Sprintf("%s-page-%d", s.id, index))
	}
	s.pages = append(s.pages, p)
	return p, nil
}

// Pages returns the pages opened with NewPage, in order.
func (s *FakeSession) Pages() []*FakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakePage(nil), s.pages...)
}

// Closes counts calls to Close.
func (s *FakeSession) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		s.primary.Close(ctx)
		for _, p := range s.pages {
			p.Close(ctx)
		}
	}
	return s.CloseErr
}

// FakeLauncher launches FakeSessions. PrimaryFunc decides what the primary page
// of each launch looks like, which lets tests model state kept in the profile.
type FakeLauncher struct {
	PrimaryFunc func(opts browser.LaunchOptions) *FakePage
	PageFunc    func(opts browser.LaunchOptions, index int) *FakePage
	LaunchErr   error

	mu       sync.Mutex
	launches []browser.LaunchOptions
	sessions []*FakeSession
}

var _ browser.Launcher = (*FakeLauncher)(nil)

func (l *FakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (schemas.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}

	n := len(l.sessions) + 1
	primary := NewFakePage(fmt.Sprintf("session-%d-primary", n))
	if l.PrimaryFunc != nil {
		primary = l.PrimaryFunc(opts)
	}
	s := NewFakeSession(fmt.Sprintf("session-%d", n), opts.ProfileDir, opts.Headless, primary)
	if l.PageFunc != nil {
		s.NewPageFunc = func(index int) *FakePage { return l.PageFunc(opts, index) }
	}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Launches returns the options of every launch, in order.
func (l *FakeLauncher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Sessions returns every session launched, in order.
func (l *FakeLauncher) Sessions() []*FakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeSession(nil), l.sessions...)
}

// MockSession is a testify mock of schemas.Session for expectation-style tests.
type MockSession struct {
	mock.Mock
}

var _ schemas.Session = (*MockSession)(nil)

func (m *MockSession) ID() string {
	return m.Called().String(0)
}

func (m *MockSession) ProfileDir() string {
	return m.Called().String(0)
}

func (m *MockSession) Headless() bool {
	return m.Called().Bool(0)
}

func (m *MockSession) Primary() schemas.Page {
	args := m.Called()
	if p := args.Get(0); p != nil {
		return p.(schemas.Page)
	}
	return nil
}

func (m *MockSession) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(schemas.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
