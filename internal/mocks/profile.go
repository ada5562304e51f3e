// File: internal/mocks/profile.go
package mocks

import (
	"net/url"
	"sync"
)

// ProfileStore models login state persisted in profile directories, so that
// tests can observe it surviving a relaunch.
type ProfileStore struct {
	mu       sync.Mutex
	signedIn map[string]bool
}

// NewProfileStore creates a store where every profile starts signed out.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{signedIn: make(map[string]bool)}
}

// SignIn marks the profile as signed in.
func (s *ProfileStore) SignIn(profileDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedIn[profileDir] = true
}

// SignedIn reports the login state of the profile.
func (s *ProfileStore) SignedIn(profileDir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn[profileDir]
}

// Gate redirects page navigations to signInURL while the profile is signed out.
func (s *ProfileStore) Gate(page *FakePage, profileDir, signInURL string) *FakePage {
	page.OnNavigate = func(target string) string {
		if s.SignedIn(profileDir) {
			return target
		}
		return signInURL + "?continue=" + url.QueryEscape(target)
	}
	return page
}
