package split

import (
	"math"
	"strconv"
	"testing"

	"github.com/skohli/splitvoice/internal/ledger"
)

var (
	me     = ledger.User{ID: 999, FirstName: "Test", LastName: "User"}
	sumeet = ledger.User{ID: 101, FirstName: "Sumeet", LastName: "Singh"}
	mridul = ledger.User{ID: 102, FirstName: "Mridul", LastName: "Singh"}
	alice  = ledger.User{ID: 103, FirstName: "Alice", LastName: "Wong"}
)

func shareFor(t *testing.T, shares []ledger.UserShare, userID int64) ledger.UserShare {
	t.Helper()
	for _, s := range shares {
		if s.UserID == userID {
			return s
		}
	}
	t.Fatalf("no share for user %d", userID)
	return ledger.UserShare{}
}

func TestAllocateEqualSplit(t *testing.T) {
	shares, err := Allocate(70, []ledger.User{me, sumeet}, nil, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	mine := shareFor(t, shares, me.ID)
	if mine.PaidShare != "70.00" {
		t.Errorf("payer paid share = %q, want 70.00", mine.PaidShare)
	}
	if mine.OwedShare != "35.00" {
		t.Errorf("payer owed share = %q, want 35.00", mine.OwedShare)
	}

	theirs := shareFor(t, shares, sumeet.ID)
	if theirs.PaidShare != "0.00" {
		t.Errorf("non-payer paid share = %q, want 0.00", theirs.PaidShare)
	}
	if theirs.OwedShare != "35.00" {
		t.Errorf("non-payer owed share = %q, want 35.00", theirs.OwedShare)
	}
}

func TestAllocateEqualSplitRoundingSlack(t *testing.T) {
	// 100 / 3 does not divide evenly; the slack is accepted, not corrected.
	participants := []ledger.User{me, sumeet, mridul}
	shares, err := Allocate(100, participants, nil, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	var owedSum float64
	for _, s := range shares {
		if s.OwedShare != "33.33" {
			t.Errorf("owed share = %q, want 33.33", s.OwedShare)
		}
		owed, err := strconv.ParseFloat(s.OwedShare, 64)
		if err != nil {
			t.Fatalf("unparseable owed share %q", s.OwedShare)
		}
		owedSum += owed
	}

	slack := math.Abs(owedSum - 100)
	if slack > float64(len(participants))*0.01 {
		t.Errorf("owed sum %f misses total by %f, want at most %f", owedSum, slack, float64(len(participants))*0.01)
	}
}

func TestAllocateExplicitAmounts(t *testing.T) {
	spec := []SpecEntry{
		{Name: "me", Kind: Amount, Value: 1.00},
		{Name: "Mridul Singh", Kind: Amount, Value: 3.00},
	}
	shares, err := Allocate(4.00, []ledger.User{me, mridul}, spec, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if got := shareFor(t, shares, me.ID).OwedShare; got != "1.00" {
		t.Errorf("me owed = %q, want 1.00", got)
	}
	if got := shareFor(t, shares, mridul.ID).OwedShare; got != "3.00" {
		t.Errorf("Mridul owed = %q, want 3.00", got)
	}
}

func TestAllocateExplicitPercentages(t *testing.T) {
	spec := []SpecEntry{
		{Name: "me", Kind: Percentage, Value: 40},
		{Name: "Sumeet", Kind: Percentage, Value: 60},
	}
	shares, err := Allocate(50, []ledger.User{me, sumeet}, spec, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if got := shareFor(t, shares, me.ID).OwedShare; got != "20.00" {
		t.Errorf("me owed = %q, want 20.00", got)
	}
	if got := shareFor(t, shares, sumeet.ID).OwedShare; got != "30.00" {
		t.Errorf("Sumeet owed = %q, want 30.00", got)
	}

	var owedSum float64
	for _, s := range shares {
		owed, _ := strconv.ParseFloat(s.OwedShare, 64)
		owedSum += owed
	}
	if math.Abs(owedSum-50) > 0.05 {
		t.Errorf("percentages summing to 100%% should reconcile, got %f", owedSum)
	}
}

func TestAllocateUnmatchedParticipantOwesNothing(t *testing.T) {
	spec := []SpecEntry{
		{Name: "me", Kind: Amount, Value: 50},
	}
	shares, err := Allocate(50, []ledger.User{me, alice}, spec, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got := shareFor(t, shares, alice.ID).OwedShare; got != "0.00" {
		t.Errorf("unmatched participant owed = %q, want 0.00", got)
	}
}

func TestAllocateSubstringKeyMatch(t *testing.T) {
	// "sumeet" matches "Sumeet Singh" case-insensitively.
	spec := []SpecEntry{
		{Name: "sumeet", Kind: Amount, Value: 30},
		{Name: "me", Kind: Amount, Value: 20},
	}
	shares, err := Allocate(50, []ledger.User{me, sumeet}, spec, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got := shareFor(t, shares, sumeet.ID).OwedShare; got != "30.00" {
		t.Errorf("Sumeet owed = %q, want 30.00", got)
	}
}

func TestAllocateSelfEntryNeverMatchesFriendName(t *testing.T) {
	// "me" is a substring of "Sumeet"; it must still only match the current
	// user.
	spec := []SpecEntry{
		{Name: "me", Kind: Amount, Value: 10},
		{Name: "Sumeet", Kind: Amount, Value: 40},
	}
	shares, err := Allocate(50, []ledger.User{me, sumeet}, spec, me.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got := shareFor(t, shares, me.ID).OwedShare; got != "10.00" {
		t.Errorf("me owed = %q, want 10.00", got)
	}
	if got := shareFor(t, shares, sumeet.ID).OwedShare; got != "40.00" {
		t.Errorf("Sumeet owed = %q, want 40.00", got)
	}
}

func TestAllocateNonSelfPayer(t *testing.T) {
	shares, err := Allocate(60, []ledger.User{me, sumeet, alice}, nil, alice.ID, me.ID)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	for _, s := range shares {
		want := "0.00"
		if s.UserID == alice.ID {
			want = "60.00"
		}
		if s.PaidShare != want {
			t.Errorf("user %d paid share = %q, want %q", s.UserID, s.PaidShare, want)
		}
		if s.OwedShare != "20.00" {
			t.Errorf("user %d owed share = %q, want 20.00", s.UserID, s.OwedShare)
		}
	}
}

func TestAllocateLooseReconciliation(t *testing.T) {
	// Shares that miss the total by more than the tolerance are still
	// accepted; the mismatch is deliberate leniency, not an error.
	spec := []SpecEntry{
		{Name: "me", Kind: Amount, Value: 10},
		{Name: "Sumeet Singh", Kind: Amount, Value: 20},
	}
	if _, err := Allocate(100, []ledger.User{me, sumeet}, spec, me.ID, me.ID); err != nil {
		t.Fatalf("Allocate() error = %v, want nil for loose reconciliation", err)
	}
}

func TestAllocateErrors(t *testing.T) {
	tests := []struct {
		name         string
		total        float64
		participants []ledger.User
		wantErr      error
	}{
		{name: "zero total", total: 0, participants: []ledger.User{me}, wantErr: ErrInvalidTotal},
		{name: "negative total", total: -5, participants: []ledger.User{me}, wantErr: ErrInvalidTotal},
		{name: "no participants", total: 10, participants: nil, wantErr: ErrNoParticipants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(tt.total, tt.participants, nil, me.ID, me.ID)
			if err != tt.wantErr {
				t.Errorf("Allocate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
