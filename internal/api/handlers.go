package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/skohli/splitvoice/internal/expense"
	"github.com/skohli/splitvoice/internal/ledger"
	"github.com/skohli/splitvoice/internal/split"
	"github.com/skohli/splitvoice/internal/transcribe"
)

// Protected handlers

func (a *API) handleListFriends(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	friends, err := sess.dir.Friends(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	type friendOut struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	out := make([]friendOut, 0, len(friends))
	for _, f := range friends {
		out = append(out, friendOut{ID: f.ID, Name: f.FullName()})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"friends": out})
}

// handleAddExpense is the direct path: arguments are resolved and posted
// without involving the conversational model.
func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var args expense.Args
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, payload, err := sess.expenses.Create(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"id":      id,
		"message": fmt.Sprintf("Added %s for %s", payload.Cost, payload.Description),
	})
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid expense id", http.StatusBadRequest)
		return
	}

	if err := sess.expenses.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": fmt.Sprintf("deleted expense %d", id),
	})
}

// handleTextCommand interprets natural language and auto-confirms whatever
// the model proposes: the remote caller has already decided.
func (a *API) handleTextCommand(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	result, err := sess.agent.ProcessAndExecute(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"result": result})
}

func (a *API) handleVoiceCommand(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req struct {
		AudioBase64 string `json:"audio_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AudioBase64 == "" {
		http.Error(w, "audio_base64 is required", http.StatusBadRequest)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		http.Error(w, "invalid base64 audio", http.StatusBadRequest)
		return
	}

	transcript, err := a.transcriber.TranscribeBytes(r.Context(), audio)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := sess.agent.ProcessAndExecute(r.Context(), transcript)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"transcript": transcript,
		"result":     result,
	})
}

func (a *API) handleListActions(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	if a.store == nil {
		http.Error(w, "audit log not configured", http.StatusNotFound)
		return
	}
	actions, err := a.store.ListBySession(r.Context(), sess.agent.ID)
	if err != nil {
		http.Error(w, "failed to list actions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"actions": actions})
}

// writeError maps domain errors onto HTTP statuses. Resolution failures are
// the caller's to correct; ledger rejections surface verbatim.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var friendErr *expense.FriendNotFoundError
	var groupErr *expense.GroupNotFoundError
	var payerErr *expense.PayerNotFoundError
	var apiErr *ledger.APIError

	switch {
	case errors.Is(err, ledger.ErrNotConfigured):
		status = http.StatusUnauthorized
	case errors.As(err, &friendErr), errors.As(err, &groupErr), errors.As(err, &payerErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, split.ErrInvalidTotal), errors.Is(err, split.ErrNoParticipants):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, transcribe.ErrEmptyTranscript):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}

	http.Error(w, err.Error(), status)
}
