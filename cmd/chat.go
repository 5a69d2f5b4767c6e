package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/chat"
	"github.com/mercantile/chatkit/internal/config"
	"github.com/mercantile/chatkit/internal/log"
	"github.com/mercantile/chatkit/internal/tui"
	"github.com/mercantile/chatkit/internal/upload"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive assistant session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: no bearer token configured")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Please run:")
		fmt.Fprintln(os.Stderr, "  export CHATKIT_TOKEN=your-token")
		fmt.Fprintln(os.Stderr, "or set token in ~/.chatkit/config.yaml")
		return config.ErrMissingToken
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})

	client, err := api.New(cfg.Endpoint, func() string { return cfg.Token }, logger)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	// One coalesced notification channel redraws the TUI for both session
	// and upload changes.
	changes, ping := tui.NewChangeNotifier()

	session, err := chat.NewSession(client, logger, chat.WithSessionOnChange(ping))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	uploads, err := upload.New(client, cfg.MaxUploadFiles, cfg.MaxUploadBytes, logger, upload.WithOnChange(ping))
	if err != nil {
		return fmt.Errorf("creating upload coordinator: %w", err)
	}
	pager, err := chat.NewHistoryPager(client, cfg.HistoryPageSize, logger)
	if err != nil {
		return fmt.Errorf("creating history pager: %w", err)
	}

	model, err := tui.New(ctx, tui.Deps{
		Session: session,
		Pager:   pager,
		Uploads: uploads,
		Changes: changes,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}

	// Let canceled background work unwind before the process exits.
	session.Wait()
	_ = uploads.Wait()
	return nil
}
