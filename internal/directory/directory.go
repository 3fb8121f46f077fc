// Package directory resolves human-supplied names to verified Splitwise
// participants. Lookups are cached for the lifetime of a session and
// invalidated only by reconfiguration.
package directory

import (
	"context"
	"strings"
	"sync"

	"github.com/skohli/splitvoice/internal/ledger"
)

// Roster is the read-only slice of the ledger service the directory needs.
type Roster interface {
	CurrentUser(ctx context.Context) (ledger.User, error)
	Friends(ctx context.Context) ([]ledger.User, error)
	Groups(ctx context.Context) ([]ledger.Group, error)
}

type Directory struct {
	roster Roster

	mu            sync.Mutex
	self          *ledger.User
	friends       []ledger.User
	friendsLoaded bool
	groups        []ledger.Group
	groupsLoaded  bool
}

func New(roster Roster) *Directory {
	return &Directory{roster: roster}
}

// Invalidate clears all cached identity state. Must be called whenever the
// underlying credentials change.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.self = nil
	d.friends = nil
	d.friendsLoaded = false
	d.groups = nil
	d.groupsLoaded = false
}

func (d *Directory) CurrentUser(ctx context.Context) (ledger.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.self != nil {
		return *d.self, nil
	}
	user, err := d.roster.CurrentUser(ctx)
	if err != nil {
		return ledger.User{}, err
	}
	d.self = &user
	return user, nil
}

// Friends returns the friend list in the ledger service's listing order.
func (d *Directory) Friends(ctx context.Context) ([]ledger.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.friendsLocked(ctx)
}

func (d *Directory) friendsLocked(ctx context.Context) ([]ledger.User, error) {
	if d.friendsLoaded {
		return d.friends, nil
	}
	friends, err := d.roster.Friends(ctx)
	if err != nil {
		return nil, err
	}
	d.friends = friends
	d.friendsLoaded = true
	return friends, nil
}

func (d *Directory) Groups(ctx context.Context) ([]ledger.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groupsLocked(ctx)
}

func (d *Directory) groupsLocked(ctx context.Context) ([]ledger.Group, error) {
	if d.groupsLoaded {
		return d.groups, nil
	}
	groups, err := d.roster.Groups(ctx)
	if err != nil {
		return nil, err
	}
	d.groups = groups
	d.groupsLoaded = true
	return groups, nil
}

// FindFriend resolves a name against the friend list. A query matches when it
// is a case-insensitive substring of "first last", or equals the first or
// last name exactly. The first match in listing order wins. There is no
// fuzzy or phonetic matching: a near-miss is reported as not found so the
// caller can ask the human, never guess.
func (d *Directory) FindFriend(ctx context.Context, name string) (ledger.User, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	friends, err := d.friendsLocked(ctx)
	if err != nil {
		return ledger.User{}, false, err
	}
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return ledger.User{}, false, nil
	}
	for _, f := range friends {
		first := strings.ToLower(f.FirstName)
		last := strings.ToLower(f.LastName)
		full := strings.TrimSpace(first + " " + last)
		if strings.Contains(full, query) || query == first || query == last {
			return f, true, nil
		}
	}
	return ledger.User{}, false, nil
}

// FindGroup resolves a group by case-insensitive exact name match. Groups are
// few and their names collide less, so no substring matching is applied.
func (d *Directory) FindGroup(ctx context.Context, name string) (ledger.Group, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	groups, err := d.groupsLocked(ctx)
	if err != nil {
		return ledger.Group{}, false, err
	}
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return ledger.Group{}, false, nil
	}
	for _, g := range groups {
		if strings.ToLower(g.Name) == query {
			return g, true, nil
		}
	}
	return ledger.Group{}, false, nil
}
