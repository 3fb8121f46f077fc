package expense

import "fmt"

// Resolution failures are surfaced to the human (or the model) for
// correction; names are never silently guessed.

type FriendNotFoundError struct {
	Name string
}

func (e *FriendNotFoundError) Error() string {
	return fmt.Sprintf("friend not found: %s", e.Name)
}

type GroupNotFoundError struct {
	Name string
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("group not found: %s", e.Name)
}

type PayerNotFoundError struct {
	Name string
}

func (e *PayerNotFoundError) Error() string {
	return fmt.Sprintf("payer not found: %s", e.Name)
}
