package directory

import (
	"context"
	"testing"

	"github.com/skohli/splitvoice/internal/ledger"
)

type fakeRoster struct {
	self    ledger.User
	friends []ledger.User
	groups  []ledger.Group

	currentUserCalls int
	friendsCalls     int
	groupsCalls      int
	err              error
}

func (f *fakeRoster) CurrentUser(ctx context.Context) (ledger.User, error) {
	f.currentUserCalls++
	return f.self, f.err
}

func (f *fakeRoster) Friends(ctx context.Context) ([]ledger.User, error) {
	f.friendsCalls++
	return f.friends, f.err
}

func (f *fakeRoster) Groups(ctx context.Context) ([]ledger.Group, error) {
	f.groupsCalls++
	return f.groups, f.err
}

func newTestRoster() *fakeRoster {
	return &fakeRoster{
		self: ledger.User{ID: 999, FirstName: "Test", LastName: "User"},
		friends: []ledger.User{
			{ID: 101, FirstName: "Sumeet", LastName: "Singh"},
			{ID: 102, FirstName: "Mridul", LastName: "Kumar"},
			{ID: 103, FirstName: "Alice", LastName: "Wong"},
		},
		groups: []ledger.Group{
			{ID: 500, Name: "Apartment"},
			{ID: 501, Name: "Goa Trip"},
		},
	}
}

func TestFindFriend(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		wantID int64
		wantOk bool
	}{
		{name: "first name", query: "Sumeet", wantID: 101, wantOk: true},
		{name: "full name", query: "Mridul Kumar", wantID: 102, wantOk: true},
		{name: "lowercase", query: "sumeet singh", wantID: 101, wantOk: true},
		{name: "last name", query: "Wong", wantID: 103, wantOk: true},
		{name: "substring of full name", query: "eet Si", wantID: 101, wantOk: true},
		{name: "near miss is not guessed", query: "Humeet", wantOk: false},
		{name: "unknown", query: "Rahul", wantOk: false},
		{name: "empty", query: "", wantOk: false},
	}

	dir := New(newTestRoster())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			friend, ok, err := dir.FindFriend(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("FindFriend() error = %v", err)
			}
			if ok != tt.wantOk {
				t.Fatalf("FindFriend(%q) ok = %v, want %v", tt.query, ok, tt.wantOk)
			}
			if ok && friend.ID != tt.wantID {
				t.Errorf("FindFriend(%q) = %d, want %d", tt.query, friend.ID, tt.wantID)
			}
		})
	}
}

func TestFindFriendFirstMatchWins(t *testing.T) {
	roster := newTestRoster()
	roster.friends = []ledger.User{
		{ID: 1, FirstName: "Sam", LastName: "Singh"},
		{ID: 2, FirstName: "Samantha", LastName: "Lee"},
	}
	dir := New(roster)

	// "Sam" is a substring of both full names; listing order decides.
	friend, ok, err := dir.FindFriend(context.Background(), "Sam")
	if err != nil || !ok {
		t.Fatalf("FindFriend() = %v, %v", ok, err)
	}
	if friend.ID != 1 {
		t.Errorf("FindFriend(Sam) = %d, want first match 1", friend.ID)
	}
}

func TestFindGroupExactMatchOnly(t *testing.T) {
	dir := New(newTestRoster())

	group, ok, err := dir.FindGroup(context.Background(), "apartment")
	if err != nil || !ok {
		t.Fatalf("FindGroup(apartment) = %v, %v", ok, err)
	}
	if group.ID != 500 {
		t.Errorf("FindGroup(apartment) = %d, want 500", group.ID)
	}

	// No substring matching for groups.
	if _, ok, _ := dir.FindGroup(context.Background(), "Apart"); ok {
		t.Error("FindGroup(Apart) matched, want exact-match-only behavior")
	}
}

func TestDirectoryCachesPerSession(t *testing.T) {
	roster := newTestRoster()
	dir := New(roster)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := dir.FindFriend(ctx, "Sumeet"); err != nil {
			t.Fatalf("FindFriend() error = %v", err)
		}
		if _, _, err := dir.FindGroup(ctx, "Apartment"); err != nil {
			t.Fatalf("FindGroup() error = %v", err)
		}
		if _, err := dir.CurrentUser(ctx); err != nil {
			t.Fatalf("CurrentUser() error = %v", err)
		}
	}

	if roster.friendsCalls != 1 {
		t.Errorf("friends fetched %d times, want 1", roster.friendsCalls)
	}
	if roster.groupsCalls != 1 {
		t.Errorf("groups fetched %d times, want 1", roster.groupsCalls)
	}
	if roster.currentUserCalls != 1 {
		t.Errorf("current user fetched %d times, want 1", roster.currentUserCalls)
	}
}

func TestInvalidateClearsCache(t *testing.T) {
	roster := newTestRoster()
	dir := New(roster)
	ctx := context.Background()

	dir.FindFriend(ctx, "Sumeet")
	dir.CurrentUser(ctx)
	dir.Invalidate()
	dir.FindFriend(ctx, "Sumeet")
	dir.CurrentUser(ctx)

	if roster.friendsCalls != 2 {
		t.Errorf("friends fetched %d times after invalidate, want 2", roster.friendsCalls)
	}
	if roster.currentUserCalls != 2 {
		t.Errorf("current user fetched %d times after invalidate, want 2", roster.currentUserCalls)
	}
}

func TestDirectoryPropagatesNotConfigured(t *testing.T) {
	roster := newTestRoster()
	roster.err = ledger.ErrNotConfigured
	dir := New(roster)

	if _, _, err := dir.FindFriend(context.Background(), "Sumeet"); err != ledger.ErrNotConfigured {
		t.Errorf("FindFriend() error = %v, want ErrNotConfigured", err)
	}
	if _, err := dir.CurrentUser(context.Background()); err != ledger.ErrNotConfigured {
		t.Errorf("CurrentUser() error = %v, want ErrNotConfigured", err)
	}
}
