package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lumichat/murmur/internal/bus"
	"github.com/lumichat/murmur/internal/config"
	"github.com/lumichat/murmur/internal/engine"
	"github.com/lumichat/murmur/internal/history"
)

var rootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "murmur - conversational state core (sessions, memory, transcripts)",
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Drive the state engine from stdin (one turn per line)",
	RunE:  runChat,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show murmur configuration and stored state",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the persisted transcript for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var sessionFlag string

func init() {
	chatCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session id (generated when empty)")
	rootCmd.AddCommand(onboardCmd, chatCmd, statusCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := config.SaveConfig(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config: %s\ndata:   %s\n", config.ConfigPath(), cfg.DataDir)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	eng := engine.New(cfg)
	defer eng.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		return err
	}

	sessionID := sessionFlag
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	snap := eng.GetOrCreateSession(sessionID)
	fmt.Fprintf(cmd.OutOrStdout(), "session %s (created %s)\n", snap.SessionID, snap.CreatedAt.Format("15:04:05"))

	if err := chatLoop(eng, sessionID, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return err
	}

	archivePath, err := eng.EndSession(sessionID)
	if err != nil {
		return err
	}
	if archivePath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "archived: %s\n", archivePath)
	}
	return nil
}

func chatLoop(eng *engine.Engine, sessionID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}
		result := eng.RecordTurn(bus.InboundTurn{SessionID: sessionID, Role: "user", Content: text})
		if !result.Saved {
			fmt.Fprintln(out, "(warning: turn not persisted)")
		}
		if result.MemoryDigest != "" {
			fmt.Fprintf(out, "memory:\n%s\n", result.MemoryDigest)
		}
		stats := eng.MemoryStats(sessionID)
		fmt.Fprintf(out, "[%d turns buffered, %d/%d memories]\n",
			len(eng.GetHistory(sessionID)), stats.Active, stats.Total)
	}
	return scanner.Err()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config:          %s\n", config.ConfigPath())
	fmt.Fprintf(out, "data dir:        %s\n", cfg.DataDir)
	fmt.Fprintf(out, "session timeout: %ds (sweep every %ds)\n", cfg.Session.TimeoutSeconds, cfg.Session.SweepIntervalSeconds)
	fmt.Fprintf(out, "memory capacity: %d items, top-%d retrieval\n", cfg.Memory.Capacity, cfg.Memory.RetrievalLimit)
	fmt.Fprintf(out, "archive window:  %d days\n", cfg.History.ArchiveWindowDays)
	if len(cfg.Personas) > 0 {
		fmt.Fprintf(out, "personas:        %d configured\n", len(cfg.Personas))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	store := history.NewStore(cfg.DataDir, cfg.History.ArchiveWindowDays)
	msgs := store.LoadHistory(args[0])
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no history found")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), formatHistory(msgs))
	return nil
}

func formatHistory(msgs []history.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
	}
	return sb.String()
}
