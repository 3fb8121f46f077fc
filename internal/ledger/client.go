package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://secure.splitwise.com/api/v3.0"

// ErrNotConfigured is returned by every call made before credentials have
// been supplied via Configure.
var ErrNotConfigured = errors.New("splitwise client not configured")

// APIError carries the remote service's error strings verbatim.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("splitwise API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("splitwise API error: %s", strings.Join(e.Messages, "; "))
}

// Credentials configures the client. An access token (OAuth) or an API key
// (personal bearer token) is sufficient to make calls; the consumer pair is
// only used by the OAuth authorization flow in the API layer.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	APIKey         string
	AccessToken    string
}

// Token returns the bearer token the credentials carry, if any.
func (c Credentials) Token() string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return c.APIKey
}

// Client talks to the Splitwise REST API. A zero-value client is
// unconfigured; Configure may be called at any time to (re)set credentials.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	return &Client{baseURL: defaultBaseURL}
}

// Configure installs a bearer token. Credentials without a usable token
// (e.g. only a consumer pair) leave the client unconfigured.
func (c *Client) Configure(creds Credentials) {
	token := creds.Token()
	if token == "" {
		c.http = nil
		return
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c.http = oauth2.NewClient(context.Background(), src)
	c.http.Timeout = 30 * time.Second
	logrus.Debug("splitwise client configured")
}

func (c *Client) Configured() bool {
	return c != nil && c.http != nil
}

func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/get_current_user", &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// Friends lists the current user's friends in the service's listing order.
// Callers that match names rely on this order being preserved.
func (c *Client) Friends(ctx context.Context) ([]User, error) {
	var resp struct {
		Friends []User `json:"friends"`
	}
	if err := c.get(ctx, "/get_friends", &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	if err := c.get(ctx, "/get_groups", &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// CreateExpense posts the payload and returns the new expense ID.
func (c *Client) CreateExpense(ctx context.Context, payload ExpensePayload) (int64, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("cost", payload.Cost)
	form.Set("description", payload.Description)
	if payload.GroupID != 0 {
		form.Set("group_id", fmt.Sprintf("%d", payload.GroupID))
	}
	for i, u := range payload.Users {
		prefix := fmt.Sprintf("users__%d__", i)
		form.Set(prefix+"user_id", fmt.Sprintf("%d", u.UserID))
		form.Set(prefix+"paid_share", u.PaidShare)
		form.Set(prefix+"owed_share", u.OwedShare)
	}

	var resp struct {
		Expenses []struct {
			ID int64 `json:"id"`
		} `json:"expenses"`
		Errors map[string][]string `json:"errors"`
	}
	if err := c.postForm(ctx, "/create_expense", form, &resp); err != nil {
		return 0, err
	}
	if msgs := flattenErrors(resp.Errors); len(msgs) > 0 {
		return 0, &APIError{StatusCode: http.StatusOK, Messages: msgs}
	}
	if len(resp.Expenses) == 0 {
		return 0, &APIError{StatusCode: http.StatusOK, Messages: []string{"no expense returned"}}
	}
	logrus.WithFields(logrus.Fields{
		"expense_id":  resp.Expenses[0].ID,
		"description": payload.Description,
		"cost":        payload.Cost,
	}).Info("expense created")
	return resp.Expenses[0].ID, nil
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var resp struct {
		Success bool                `json:"success"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := c.postForm(ctx, fmt.Sprintf("/delete_expense/%d", id), url.Values{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msgs := flattenErrors(resp.Errors)
		if len(msgs) == 0 {
			msgs = []string{fmt.Sprintf("failed to delete expense %d", id)}
		}
		return &APIError{StatusCode: http.StatusOK, Messages: msgs}
	}
	logrus.WithField("expense_id", id).Info("expense deleted")
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("splitwise request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Errors map[string][]string `json:"errors"`
			Error  string              `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		msgs := flattenErrors(body.Errors)
		if body.Error != "" {
			msgs = append(msgs, body.Error)
		}
		return &APIError{StatusCode: resp.StatusCode, Messages: msgs}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode splitwise response: %w", err)
	}
	return nil
}

func flattenErrors(errs map[string][]string) []string {
	if len(errs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, errs[k]...)
	}
	return msgs
}
