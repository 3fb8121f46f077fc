package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skohli/splitvoice/internal/agent"
	"github.com/skohli/splitvoice/internal/api"
	"github.com/skohli/splitvoice/internal/audit"
	"github.com/skohli/splitvoice/internal/bot"
	"github.com/skohli/splitvoice/internal/config"
	"github.com/skohli/splitvoice/internal/directory"
	"github.com/skohli/splitvoice/internal/expense"
	"github.com/skohli/splitvoice/internal/ledger"
	"github.com/skohli/splitvoice/internal/transcribe"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Optional action audit log
	var store *audit.Store
	if cfg.DatabaseURL != "" {
		store, err = audit.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()

		if err := store.RunMigrations(context.Background()); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
	}

	transcriber := transcribe.NewClient(cfg.OpenAIKey)

	if len(os.Args) > 1 && os.Args[1] == "serve" {
		runServer(cfg, store, transcriber)
		return
	}
	runCLI(cfg, store, transcriber)
}

func runServer(cfg *config.Config, store *audit.Store, transcriber *transcribe.Client) {
	apiServer := api.New(cfg, store, transcriber)

	if cfg.DiscordToken != "" {
		factory := func(ctx context.Context) (*agent.Session, error) {
			return newAgentSession(ctx, cfg, store)
		}
		discordBot, err := bot.New(cfg.DiscordToken, factory, transcriber)
		if err != nil {
			logrus.Fatalf("Failed to create discord bot: %v", err)
		}
		if err := discordBot.Start(); err != nil {
			logrus.Fatalf("Failed to start discord bot: %v", err)
		}
		defer discordBot.Stop()
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			logrus.Errorf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logrus.Info("Shutting down...")
}

// newAgentSession wires a session around the credentials from the
// environment. Without Splitwise credentials it still works: lookups fail
// with a configuration message the model relays to the user.
func newAgentSession(ctx context.Context, cfg *config.Config, store *audit.Store) (*agent.Session, error) {
	client := ledger.NewClient()
	client.Configure(ledger.Credentials{
		ConsumerKey:    cfg.SplitwiseConsumerKey,
		ConsumerSecret: cfg.SplitwiseConsumerSecret,
		APIKey:         cfg.SplitwiseAPIKey,
	})

	dir := directory.New(client)

	var friends []ledger.User
	var groups []ledger.Group
	if client.Configured() {
		loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		var err error
		if friends, err = dir.Friends(loadCtx); err != nil {
			logrus.Warnf("Failed to pre-load friends: %v", err)
		}
		if groups, err = dir.Groups(loadCtx); err != nil {
			logrus.Warnf("Failed to pre-load groups: %v", err)
		}
	}

	chat := agent.NewOpenAIChat(cfg.OpenAIKey, "", agent.BuildSystemPrompt(friends, groups))
	expenses := expense.NewService(dir, client)

	var recorder agent.Recorder
	if store != nil {
		recorder = store
	}
	return agent.NewSession(chat, expenses, dir, recorder), nil
}

func runCLI(cfg *config.Config, store *audit.Store, transcriber *transcribe.Client) {
	ctx := context.Background()
	sess, err := newAgentSession(ctx, cfg, store)
	if err != nil {
		logrus.Fatalf("Failed to create session: %v", err)
	}

	fmt.Println("Splitwise Voice Agent (with confirmation)")
	fmt.Println("Commands:")
	fmt.Println(" - 'v' or 'voice':  Transcribe a WAV file")
	fmt.Println(" - 't' or 'text':   Type text input")
	fmt.Println(" - 'q' or 'quit':   Exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		choice := strings.ToLower(prompt(scanner, "\nEnter command (voice/text/quit): "))

		var userText string
		switch choice {
		case "q", "quit":
			fmt.Println("Bye!")
			return
		case "v", "voice":
			path := prompt(scanner, "Path to audio file: ")
			if path == "" {
				continue
			}
			text, err := transcriber.Transcribe(ctx, path)
			if err != nil {
				if errors.Is(err, transcribe.ErrEmptyTranscript) {
					fmt.Println("No speech recognized. Try again.")
				} else {
					fmt.Printf("Audio error: %v\n", err)
				}
				continue
			}
			fmt.Printf("You said: %s\n", text)
			userText = text
		case "t", "text":
			userText = prompt(scanner, "Enter request: ")
		default:
			continue
		}
		if userText == "" {
			continue
		}

		runTurn(ctx, scanner, sess, userText)
	}
}

// runTurn drives one request through the confirmation loop until the agent
// answers in plain text, the action executes, or the user cancels.
func runTurn(ctx context.Context, scanner *bufio.Scanner, sess *agent.Session, text string) {
	outcome, err := sess.ProcessInput(ctx, text)
	for {
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if outcome.Kind == agent.OutcomeText {
			fmt.Printf("\nAgent: %s\n", outcome.Text)
			return
		}

		fmt.Println("\nProposed action:")
		fmt.Printf("   %s\n", outcome.Proposal.Summary())

		confirm := strings.ToLower(prompt(scanner, "\nProceed? (yes/edit/cancel): "))
		switch confirm {
		case "y", "yes":
			fmt.Println("Executing...")
			outcome, err = sess.Confirm(ctx)
		case "c", "cancel", "n", "no":
			sess.Cancel()
			fmt.Println("Cancelled action.")
			return
		default:
			feedback := confirm
			if feedback == "edit" {
				feedback = prompt(scanner, "What corrections? (e.g. 'amount is 15'): ")
			}
			outcome, err = sess.Feedback(ctx, feedback)
		}
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return "quit"
	}
	return strings.TrimSpace(scanner.Text())
}
