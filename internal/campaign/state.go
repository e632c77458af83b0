package campaign

import (
	"sync"
	"time"

	"outreachbot/internal/message"
)

// Store serializes all reads and writes of the campaign Config. Mutations
// never partially apply: a rejected template leaves the previous value in
// place, and concurrent selection/template updates cannot interleave.
type Store struct {
	mu              sync.Mutex
	cfg             Config
	defaultTemplate string
}

func NewStore(defaultTemplate string) *Store {
	if defaultTemplate == "" {
		defaultTemplate = message.DefaultTemplate
	}
	return &Store{
		cfg:             Config{Template: defaultTemplate},
		defaultTemplate: defaultTemplate,
	}
}

// Get returns a snapshot; the caller owns the returned selection copy.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.cfg
	cp.Selection = copySelection(s.cfg.Selection)
	if s.cfg.ScheduledAt != nil {
		at := *s.cfg.ScheduledAt
		cp.ScheduledAt = &at
	}
	return cp
}

// SetSelection replaces the recipient selection. nil selects everyone; an
// empty set selects nobody.
func (s *Store) SetSelection(ids map[string]struct{}) {
	cp := copySelection(ids)
	s.mu.Lock()
	s.cfg.Selection = cp
	s.mu.Unlock()
}

// SetTemplate validates and replaces the message template. On error the
// previous template is retained.
func (s *Store) SetTemplate(text string) error {
	if err := message.Validate(text); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg.Template = text
	s.mu.Unlock()
	return nil
}

// SetScheduledAt records (or clears, with nil) the armed fire time. This is
// display bookkeeping only; the schedule.Service owns the actual timer.
func (s *Store) SetScheduledAt(at *time.Time) {
	s.mu.Lock()
	if at == nil {
		s.cfg.ScheduledAt = nil
	} else {
		cp := *at
		s.cfg.ScheduledAt = &cp
	}
	s.mu.Unlock()
}

// Reset restores the defaults: everyone selected, default template, no
// schedule bookkeeping.
func (s *Store) Reset() {
	s.mu.Lock()
	s.cfg = Config{Template: s.defaultTemplate}
	s.mu.Unlock()
}
