// Package split computes per-participant paid and owed shares for an
// expense. It is a pure function of already-resolved participants: name
// resolution happens upstream, and the participant set is never mutated
// here.
package split

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skohli/splitvoice/internal/ledger"
)

var (
	ErrInvalidTotal   = errors.New("expense total must be positive")
	ErrNoParticipants = errors.New("no participants to split between")
)

// reconcileTolerance is how far the sum of explicit owed shares may drift
// from the total before it is worth mentioning in the logs. Mismatches are
// never rejected: percentage and float rounding legitimately miss by a few
// cents, and silently "fixing" a user's explicit shares would be worse.
const reconcileTolerance = 0.05

// Allocate computes shares for every participant. The payer gets a paid
// share equal to the total and everyone else pays 0.00; a single expense has
// exactly one payer. Owed shares follow the split entries when present,
// otherwise the total is divided equally. payerID must reference one of the
// participants.
func Allocate(total float64, participants []ledger.User, spec []SpecEntry, payerID, selfID int64) ([]ledger.UserShare, error) {
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	shares := make([]ledger.UserShare, 0, len(participants))

	if len(spec) == 0 {
		// Equal split. No remainder redistribution: when the division is
		// not exact the owed shares may miss the total by a cent per
		// participant, which the ledger service tolerates.
		owed := total / float64(len(participants))
		for _, p := range participants {
			shares = append(shares, ledger.UserShare{
				UserID:    p.ID,
				PaidShare: paidShare(total, p.ID, payerID),
				OwedShare: formatMoney(owed),
			})
		}
		return shares, nil
	}

	var owedSum float64
	for _, p := range participants {
		entry, ok := matchEntry(spec, p, selfID)
		owed := 0.0
		if ok {
			switch entry.Kind {
			case Percentage:
				owed = entry.Value / 100.0 * total
			default:
				owed = entry.Value
			}
		}
		owedSum += owed
		shares = append(shares, ledger.UserShare{
			UserID:    p.ID,
			PaidShare: paidShare(total, p.ID, payerID),
			OwedShare: formatMoney(owed),
		})
	}

	if math.Abs(owedSum-total) > reconcileTolerance {
		logrus.WithFields(logrus.Fields{
			"total":    formatMoney(total),
			"owed_sum": formatMoney(owedSum),
		}).Debug("explicit shares do not reconcile with total")
	}
	return shares, nil
}

// matchEntry finds the split entry for a participant: the "me"/"I" alias for
// the current user, else an exact full-name match, else the first entry
// whose name is a case-insensitive substring of the full name.
func matchEntry(spec []SpecEntry, p ledger.User, selfID int64) (SpecEntry, bool) {
	if p.ID == selfID {
		for _, e := range spec {
			if isSelfEntry(e) {
				return e, true
			}
		}
	}

	full := p.FullName()
	for _, e := range spec {
		if !isSelfEntry(e) && e.Name == full {
			return e, true
		}
	}
	// "me" would be a substring of names like "Sumeet", so alias entries are
	// excluded from name matching entirely.
	fullLower := strings.ToLower(full)
	for _, e := range spec {
		if !isSelfEntry(e) && strings.Contains(fullLower, strings.ToLower(e.Name)) {
			return e, true
		}
	}
	return SpecEntry{}, false
}

func isSelfEntry(e SpecEntry) bool {
	return strings.EqualFold(e.Name, "me") || e.Name == "I"
}

func paidShare(total float64, userID, payerID int64) string {
	if userID == payerID {
		return formatMoney(total)
	}
	return "0.00"
}

func formatMoney(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
