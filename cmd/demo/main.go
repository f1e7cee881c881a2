package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-session/domain"
	"chat-session/internal"
	"chat-session/moderation"
	"chat-session/projection"
	"chat-session/search"
	"chat-session/session"
	"chat-session/transport"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Transport
	var tr transport.Transport
	switch config.Transport {
	case "websocket":
		tr = transport.NewWebsocket(log, config.ChatServerURL)
	default:
		tr = transport.NewSim(log, config.EchoDelay, config.ReplyDelay)
	}

	// 3. Session wiring
	opts := []session.Option{
		session.WithDefaultRoom(config.DefaultRoomID, config.DefaultRoomName),
	}

	if words := config.Words(); len(words) > 0 {
		mask, err := config.MaskRune()
		if err != nil {
			return err
		}
		moderator, err := moderation.NewModerator(words, mask)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		opts = append(opts, session.WithModerator(moderator))
	}

	index, err := search.NewIndex(log)
	if err != nil {
		return fmt.Errorf("search index setup failed: %w", err)
	}
	defer index.Close()
	opts = append(opts, session.WithIndex(index))

	manager := session.NewManager(log, tr, opts...)
	timeline := projection.NewTimeline(manager.Bus())
	defer timeline.Close()

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Scripted session
	if err := script(ctx, manager, config); err != nil {
		return err
	}

	render(manager, timeline, config)
	if hits, err := manager.SearchMessages(ctx, "order", 5); err == nil {
		fmt.Printf("Search for %q matched %d message(s)\n", "order", len(hits))
	}
	manager.Disconnect()
	log.Info("Program stopped cleanly")
	return nil
}

// script runs a short conversation and waits long enough for the
// simulated peer's echo and reply timers to fire.
func script(ctx context.Context, manager *session.Manager, config internal.Config) error {
	if err := manager.Connect(ctx, config.UserID, domain.Role(config.Role)); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	if err := manager.JoinRoom(config.DefaultRoomID); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	lines := []string{
		"Hello, I have a question about my order",
		"It was supposed to arrive yesterday",
	}
	for _, line := range lines {
		if err := manager.SendMessage(ctx, config.DefaultRoomID, line); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(config.ReplyDelay + time.Second):
		return nil
	}
}

func render(manager *session.Manager, timeline *projection.Timeline, config internal.Config) {
	header := fmt.Sprintf("  ====== %s ======", config.DefaultRoomName)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Author", "Role", "Own", "Text"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, msg := range timeline.Messages() {
		own := ""
		if msg.Own {
			own = "✓"
		}
		table.Append([]string{
			msg.SentAt.Local().Format("15:04:05"),
			msg.AuthorID,
			string(msg.Sender),
			own,
			msg.Text,
		})
	}
	table.Render()

	if langs := timeline.Languages(); len(langs) > 0 {
		fmt.Println("Languages seen:", langs)
	}

	stats := manager.Stats()
	fmt.Printf("Sent: %d  Received: %d  Discarded: %d  Moderated: %d\n",
		stats.MessagesSent, stats.MessagesReceived, stats.LateDiscards, stats.ModeratedMessages)
}
