package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/skohli/splitvoice/internal/ledger"
)

// Tool names the conversational model may propose.
const (
	ToolAddExpense    = "add_expense"
	ToolDeleteExpense = "delete_expense"
	ToolListFriends   = "list_friends"
)

type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyToolCall
)

// Reply is one model response: either plain text for the human, or a
// structured action request with raw, not-yet-resolved arguments.
type Reply struct {
	Kind    ReplyKind
	Content string
	Tool    string
	CallID  string
	RawArgs json.RawMessage
}

// Chat is the conversational model collaborator. Conversation history is
// owned by the implementation, scoped to a single session.
type Chat interface {
	SendText(ctx context.Context, text string) (*Reply, error)
	SendToolResult(ctx context.Context, callID, tool, result string) (*Reply, error)
}

// OpenAIChat implements Chat on the OpenAI chat completions API with
// function-calling tools.
type OpenAIChat struct {
	client *openai.Client
	model  string

	history []openai.ChatCompletionMessage
	// open tool call awaiting a response; the wire protocol requires every
	// tool call to be answered before the next user turn.
	openCallID string
	openTool   string
}

func NewOpenAIChat(apiKey, model, systemPrompt string) *OpenAIChat {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIChat{
		client: openai.NewClient(apiKey),
		model:  model,
		history: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
	}
}

func (c *OpenAIChat) SendText(ctx context.Context, text string) (*Reply, error) {
	// A declined or superseded proposal leaves a dangling tool call in the
	// history; close it out so the API accepts the next user turn.
	if c.openCallID != "" {
		c.history = append(c.history, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    "The user did not confirm this action.",
			ToolCallID: c.openCallID,
		})
		c.openCallID = ""
		c.openTool = ""
	}
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return c.complete(ctx)
}

func (c *OpenAIChat) SendToolResult(ctx context.Context, callID, tool, result string) (*Reply, error) {
	if c.openCallID == callID {
		c.openCallID = ""
		c.openTool = ""
	}
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result,
		ToolCallID: callID,
	})
	return c.complete(ctx)
}

func (c *OpenAIChat) complete(ctx context.Context) (*Reply, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.history,
		Tools:    toolDefinitions(),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	c.history = append(c.history, msg)

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		c.openCallID = call.ID
		c.openTool = call.Function.Name
		return &Reply{
			Kind:    ReplyToolCall,
			Tool:    call.Function.Name,
			CallID:  call.ID,
			RawArgs: json.RawMessage(call.Function.Arguments),
		}, nil
	}
	return &Reply{Kind: ReplyText, Content: msg.Content}, nil
}

// BuildSystemPrompt preloads the friend and group roster into the system
// prompt so the model matches names instead of guessing identifiers.
func BuildSystemPrompt(friends []ledger.User, groups []ledger.Group) string {
	var friendList []string
	for _, f := range friends {
		friendList = append(friendList, fmt.Sprintf("%s (ID: %d)", f.FullName(), f.ID))
	}
	var groupList []string
	for _, g := range groups {
		groupList = append(groupList, fmt.Sprintf("%s (ID: %d)", g.Name, g.ID))
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant that manages Splitwise expenses.\n")
	fmt.Fprintf(&b, "Here is the user's current friend list: [%s].\n", strings.Join(friendList, ", "))
	fmt.Fprintf(&b, "Here is the user's current group list: [%s].\n", strings.Join(groupList, ", "))
	b.WriteString("Rules:\n" +
		"1. If a transcribed name does NOT exactly match a friend's name in the list, you MUST ask for clarification. " +
		"For example, if the user says 'Humeet' but the list has 'Sumeet', ask 'Did you mean Sumeet?'. Do NOT assume phonetic matches.\n" +
		"2. If the name is completely not found, ask the user to spell it again.\n" +
		"3. Do NOT guess friend IDs. Only use IDs from the list above.\n" +
		"4. To add an expense, call 'add_expense' with the matched friend names.\n" +
		"5. For unequal splits (e.g. 'I owe 10, Sumeet owes 20', or 'split 40/60%'), use 'split_map'. " +
		"Map 'me' to the user's share and friend names to theirs (amounts or percentages).\n" +
		"6. If the user mentions a group (e.g. 'add to Apartment group'), use 'group_name'. Match against the group list above.\n" +
		"7. If the user says who paid (e.g. 'Alice paid'), use 'payer_name'. The default is that the user paid.\n" +
		"8. To exclude someone from a group expense, use 'exclude_names'.\n" +
		"9. To delete an expense, use 'delete_expense' with the ID (if known) or ask for it.\n" +
		"10. Be concise and conversational.")
	return b.String()
}

func toolDefinitions() []openai.Tool {
	addExpenseParams := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"amount": {
				Type:        jsonschema.String,
				Description: "Total cost of the expense, e.g. '70' or '10.50'.",
			},
			"description": {
				Type:        jsonschema.String,
				Description: "Short description, e.g. 'Dinner' or 'Cab'.",
			},
			"friend_names": {
				Type:        jsonschema.Array,
				Items:       &jsonschema.Definition{Type: jsonschema.String},
				Description: "Names of friends to split with. May be empty when using group_name.",
			},
			"split_map": {
				Type: jsonschema.Object,
				Description: "Optional unequal split. Keys are names (use 'me' for the user), " +
					"values are amounts (e.g. '10.50') or percentages (e.g. '50%'). " +
					"Example: {\"me\": \"40%\", \"Sumeet Singh\": \"60%\"}.",
			},
			"group_name": {
				Type:        jsonschema.String,
				Description: "Optional group to add the expense to.",
			},
			"payer_name": {
				Type:        jsonschema.String,
				Description: "Optional name of who paid the full amount. Defaults to 'me'.",
			},
			"exclude_names": {
				Type:        jsonschema.Array,
				Items:       &jsonschema.Definition{Type: jsonschema.String},
				Description: "Optional names to exclude from a group split.",
			},
		},
		Required: []string{"amount", "description", "friend_names"},
	}

	deleteExpenseParams := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"expense_id": {
				Type:        jsonschema.String,
				Description: "ID of the expense to delete.",
			},
		},
		Required: []string{"expense_id"},
	}

	listFriendsParams := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{},
	}

	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolAddExpense,
				Description: "Add a new expense to Splitwise. Use this when the user wants to split a cost.",
				Parameters:  addExpenseParams,
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolDeleteExpense,
				Description: "Delete an expense by ID.",
				Parameters:  deleteExpenseParams,
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolListFriends,
				Description: "List the user's friends on Splitwise.",
				Parameters:  listFriendsParams,
			},
		},
	}
}
