// Package bot exposes the agent over Discord text channels. Each channel
// gets its own agent session; replies to a pending proposal are interpreted
// as confirm/cancel/feedback. Voice memos arrive as audio attachments, not
// via voice-channel capture.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/skohli/splitvoice/internal/agent"
	"github.com/skohli/splitvoice/internal/transcribe"
)

// SessionFactory builds a fresh agent session for a channel.
type SessionFactory func(ctx context.Context) (*agent.Session, error)

type Bot struct {
	discord     *discordgo.Session
	factory     SessionFactory
	transcriber *transcribe.Client

	mu       sync.Mutex
	channels map[string]*agent.Session
}

func New(token string, factory SessionFactory, transcriber *transcribe.Client) (*Bot, error) {
	discord, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	b := &Bot{
		discord:     discord,
		factory:     factory,
		transcriber: transcriber,
		channels:    make(map[string]*agent.Session),
	}
	discord.AddHandler(b.onMessageCreate)
	return b, nil
}

func (b *Bot) Start() error {
	if err := b.discord.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	logrus.Info("discord bot connected")
	return nil
}

func (b *Bot) Stop() {
	_ = b.discord.Close()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sess, err := b.channelSession(ctx, m.ChannelID)
	if err != nil {
		b.reply(s, m, fmt.Sprintf("Setup failed: %v", err))
		return
	}

	text := strings.TrimSpace(m.Content)
	if att := audioAttachment(m); att != nil {
		transcript, err := b.transcribeAttachment(ctx, att)
		if err != nil {
			b.reply(s, m, fmt.Sprintf("Could not transcribe audio: %v", err))
			return
		}
		b.reply(s, m, fmt.Sprintf("You said: %s", transcript))
		text = transcript
	}
	if text == "" {
		return
	}

	if sess.Pending() != nil {
		b.handlePendingReply(ctx, s, m, sess, text)
		return
	}

	outcome, err := sess.ProcessInput(ctx, text)
	if err != nil {
		b.reply(s, m, fmt.Sprintf("Error: %v", err))
		return
	}
	b.replyOutcome(s, m, outcome)
}

// handlePendingReply maps a human reply onto the confirmation state machine.
func (b *Bot) handlePendingReply(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, sess *agent.Session, text string) {
	switch strings.ToLower(text) {
	case "yes", "y":
		outcome, err := sess.Confirm(ctx)
		if err != nil {
			b.reply(s, m, fmt.Sprintf("Error: %v", err))
			return
		}
		b.replyOutcome(s, m, outcome)
	case "no", "n", "cancel":
		sess.Cancel()
		b.reply(s, m, "Cancelled.")
	default:
		outcome, err := sess.Feedback(ctx, text)
		if err != nil {
			b.reply(s, m, fmt.Sprintf("Error: %v", err))
			return
		}
		b.replyOutcome(s, m, outcome)
	}
}

func (b *Bot) replyOutcome(s *discordgo.Session, m *discordgo.MessageCreate, outcome *agent.Outcome) {
	if outcome.Kind == agent.OutcomeProposal {
		b.reply(s, m, fmt.Sprintf(
			"Proposed action:\n```%s```\nReply **yes** to confirm, **no** to cancel, or describe corrections.",
			outcome.Proposal.Summary(),
		))
		return
	}
	b.reply(s, m, outcome.Text)
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	if len(content) > 2000 {
		content = content[:1997] + "..."
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, content); err != nil {
		logrus.WithError(err).Warn("failed to send discord message")
	}
}

func (b *Bot) channelSession(ctx context.Context, channelID string) (*agent.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sess, ok := b.channels[channelID]; ok {
		return sess, nil
	}
	sess, err := b.factory(ctx)
	if err != nil {
		return nil, err
	}
	b.channels[channelID] = sess
	return sess, nil
}

func audioAttachment(m *discordgo.MessageCreate) *discordgo.MessageAttachment {
	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "audio/") ||
			strings.HasSuffix(att.Filename, ".wav") ||
			strings.HasSuffix(att.Filename, ".mp3") {
			return att
		}
	}
	return nil
}

func (b *Bot) transcribeAttachment(ctx context.Context, att *discordgo.MessageAttachment) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return "", err
	}
	return b.transcriber.TranscribeBytes(ctx, data)
}
