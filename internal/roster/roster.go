package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	logx "outreachbot/pkg/logx"
)

// Recipient is one roster entry. Immutable after load. Address is opaque to
// the engine (a transport-specific identifier); a recipient without one is
// kept in the roster but skipped by every dispatch run.
type Recipient struct {
	ID      string
	Name    string
	Company string
	Address string
}

func (r Recipient) HasAddress() bool { return strings.TrimSpace(r.Address) != "" }

// Roster is the fixed, ordered recipient list loaded once at startup.
type Roster struct {
	recipients []Recipient
	byID       map[string]int
}

// Load reads the roster CSV once. The file must have a header row naming at
// least name, company and address columns; an id column is optional (row
// position is used as a stable fallback).
func Load(path string, log logx.Logger) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	if log.IsZero() {
		log = logx.Nop()
	}
	return parse(f, log)
}

func parse(r io.Reader, log logx.Logger) (*Roster, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, ok := findColumn(idx, "name", "founder_name")
	if !ok {
		return nil, errors.New("roster: missing name column")
	}
	companyCol, ok := findColumn(idx, "company", "startup_name")
	if !ok {
		return nil, errors.New("roster: missing company column")
	}
	addrCol, ok := findColumn(idx, "address", "slack_user_id")
	if !ok {
		return nil, errors.New("roster: missing address column")
	}
	idCol, hasID := findColumn(idx, "id")

	ro := &Roster{byID: map[string]int{}}
	row := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row %d: %w", row+2, err)
		}
		row++

		get := func(col int) string {
			if col < 0 || col >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[col])
		}
		r := Recipient{
			Name:    get(nameCol),
			Company: get(companyCol),
			Address: get(addrCol),
		}
		if hasID {
			r.ID = get(idCol)
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("row%d", row)
		}
		if _, dup := ro.byID[r.ID]; dup {
			return nil, fmt.Errorf("roster: duplicate recipient id %q", r.ID)
		}
		if !r.HasAddress() {
			log.Warn("recipient has no delivery address; will be skipped",
				logx.String("id", r.ID), logx.String("name", r.Name))
		}
		ro.byID[r.ID] = len(ro.recipients)
		ro.recipients = append(ro.recipients, r)
	}
	if len(ro.recipients) == 0 {
		return nil, errors.New("roster: no recipients")
	}
	log.Info("roster loaded", logx.Int("recipients", len(ro.recipients)))
	return ro, nil
}

func findColumn(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return -1, false
}

// All returns the recipients in stable roster order. Callers must not
// mutate the returned slice.
func (r *Roster) All() []Recipient { return r.recipients }

func (r *Roster) Len() int { return len(r.recipients) }

func (r *Roster) Get(id string) (Recipient, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Recipient{}, false
	}
	return r.recipients[i], true
}

// Has reports whether id belongs to the roster.
func (r *Roster) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}
