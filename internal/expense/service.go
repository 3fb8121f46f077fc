// Package expense assembles ledger-ready expense payloads from raw,
// human-phrased split descriptions. It reads from the participant directory
// and delegates all writes to the ledger service.
package expense

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skohli/splitvoice/internal/directory"
	"github.com/skohli/splitvoice/internal/ledger"
	"github.com/skohli/splitvoice/internal/split"
)

// Args are the not-yet-resolved arguments as the conversational layer
// produces them: friend names as spoken, an optional raw split_map object,
// optional group, payer and exclusions.
type Args struct {
	Amount       string          `json:"amount"`
	Description  string          `json:"description"`
	FriendNames  []string        `json:"friend_names"`
	SplitMap     json.RawMessage `json:"split_map,omitempty"`
	GroupName    string          `json:"group_name,omitempty"`
	PayerName    string          `json:"payer_name,omitempty"`
	ExcludeNames []string        `json:"exclude_names,omitempty"`
}

// Writer is the mutating slice of the ledger service.
type Writer interface {
	CreateExpense(ctx context.Context, payload ledger.ExpensePayload) (int64, error)
	DeleteExpense(ctx context.Context, id int64) error
}

type Service struct {
	dir    *directory.Directory
	writer Writer
}

func NewService(dir *directory.Directory, writer Writer) *Service {
	return &Service{dir: dir, writer: writer}
}

// Resolve turns raw arguments into a complete payload without writing
// anything. Every referenced name must resolve to a verified participant;
// the first unresolved name fails the whole resolution.
func (s *Service) Resolve(ctx context.Context, args Args) (*ledger.ExpensePayload, error) {
	self, err := s.dir.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	total, err := strconv.ParseFloat(strings.TrimSpace(args.Amount), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", split.ErrInvalidTotal, args.Amount)
	}
	if total <= 0 {
		return nil, split.ErrInvalidTotal
	}

	var groupID int64
	var participants []ledger.User

	if args.GroupName != "" {
		group, ok, err := s.dir.FindGroup(ctx, args.GroupName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &GroupNotFoundError{Name: args.GroupName}
		}
		groupID = group.ID
		// Group membership auto-fills the split only when no friends were
		// named explicitly; otherwise the group merely tags the payload.
		if len(args.FriendNames) == 0 {
			participants = excludeMembers(group.Members, args.ExcludeNames)
		}
	}

	if len(participants) == 0 {
		participants = append(participants, self)
		for _, name := range args.FriendNames {
			friend, ok, err := s.dir.FindFriend(ctx, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &FriendNotFoundError{Name: name}
			}
			participants = append(participants, friend)
		}
	}

	participants = dedupe(participants)

	payerID := self.ID
	if args.PayerName != "" && !isSelfAlias(args.PayerName) {
		payer, ok, err := s.resolvePayer(ctx, args.PayerName, participants)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &PayerNotFoundError{Name: args.PayerName}
		}
		payerID = payer.ID
		if !containsID(participants, payer.ID) {
			// The payer need not otherwise be a split participant.
			participants = append(participants, payer)
		}
	}

	spec, err := split.ParseSpecJSON(args.SplitMap)
	if err != nil {
		return nil, err
	}

	shares, err := split.Allocate(total, participants, spec, payerID, self.ID)
	if err != nil {
		return nil, err
	}

	return &ledger.ExpensePayload{
		Cost:        fmt.Sprintf("%.2f", total),
		Description: args.Description,
		GroupID:     groupID,
		Users:       shares,
	}, nil
}

// Create resolves the arguments and posts the expense, returning the new
// expense ID along with the payload that was written.
func (s *Service) Create(ctx context.Context, args Args) (int64, *ledger.ExpensePayload, error) {
	payload, err := s.Resolve(ctx, args)
	if err != nil {
		return 0, nil, err
	}
	id, err := s.writer.CreateExpense(ctx, *payload)
	if err != nil {
		return 0, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"expense_id":   id,
		"participants": len(payload.Users),
	}).Debug("expense resolved and created")
	return id, payload, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.writer.DeleteExpense(ctx, id)
}

// resolvePayer searches the already-resolved participant set first, then the
// full friend directory. Within the set, a payer name matches by substring
// of the full name or exact first name, first match in set order.
func (s *Service) resolvePayer(ctx context.Context, name string, participants []ledger.User) (ledger.User, bool, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	for _, p := range participants {
		full := strings.ToLower(p.FullName())
		if strings.Contains(full, query) || query == strings.ToLower(p.FirstName) {
			return p, true, nil
		}
	}
	return s.dir.FindFriend(ctx, name)
}

func isSelfAlias(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "me", "i", "myself":
		return true
	}
	return false
}

// excludeMembers drops members whose full name or first name equals one of
// the exclusion entries, case-insensitively.
func excludeMembers(members []ledger.User, excludeNames []string) []ledger.User {
	if len(excludeNames) == 0 {
		return members
	}
	excluded := make(map[string]bool, len(excludeNames))
	for _, n := range excludeNames {
		excluded[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var kept []ledger.User
	for _, m := range members {
		if excluded[strings.ToLower(m.FullName())] || excluded[strings.ToLower(m.FirstName)] {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// dedupe collapses duplicate participant IDs. Order of first occurrence is
// preserved; attributes from the last occurrence win.
func dedupe(participants []ledger.User) []ledger.User {
	index := make(map[int64]int, len(participants))
	var unique []ledger.User
	for _, p := range participants {
		if i, seen := index[p.ID]; seen {
			unique[i] = p
			continue
		}
		index[p.ID] = len(unique)
		unique = append(unique, p)
	}
	return unique
}

func containsID(participants []ledger.User, id int64) bool {
	for _, p := range participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
