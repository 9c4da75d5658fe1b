package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabfab/querry/api"
	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/config"
	"github.com/fabfab/querry/database"
	"github.com/fabfab/querry/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "querry",
		Short:         "Ask questions about your own documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd(), migrateCmd(), ingestCmd(), askCmd(), tokenCmd(), clearCmd())
	return root
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger := logging.New(cfg.Log)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.New(cfg, logger, api.Deps{
				Auth:      a.auth,
				Documents: a.documents,
				Chat:      a.chat,
				Insights:  a.insights(),
				Gatherer:  a.registry,
			})
			httpServer := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      cfg.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			logger.Info("shutting down http server")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Log)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			logger.Info("schema up to date")
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	var ownerID, file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract a local file and add it to a user's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Log)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.documents.IngestFile(ctx, ownerID, file)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", file, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", doc.ID, doc.Status, doc.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "user id that owns the document")
	cmd.Flags().StringVar(&file, "file", "", "path to a PDF, Markdown, text or CSV file")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func askCmd() *cobra.Command {
	var ownerID, sessionID, question string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Chat with your documents from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Log)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				session, err := a.chat.CreateSession(ctx, ownerID)
				if err != nil {
					return err
				}
				sessionID = session.ID
				fmt.Fprintf(cmd.OutOrStdout(), "session %s\n", sessionID)
			}

			if strings.TrimSpace(question) != "" {
				return askOnce(ctx, cmd.OutOrStdout(), a.chat, sessionID, ownerID, question)
			}
			return askLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.chat, sessionID, ownerID)
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "user id asking the questions")
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id (a new session is created when empty)")
	cmd.Flags().StringVar(&question, "question", "", "ask a single question and exit")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func askLoop(ctx context.Context, in io.Reader, out io.Writer, svc *chat.Service, sessionID, ownerID string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := askOnce(ctx, out, svc, sessionID, ownerID, line); err != nil {
			if errors.Is(err, chat.ErrGenerationFailed) || errors.Is(err, chat.ErrGenerationParse) || errors.Is(err, chat.ErrPersistenceConflict) {
				fmt.Fprintf(out, "error: %v (try again)\n", err)
				continue
			}
			return err
		}
	}
}

func askOnce(ctx context.Context, out io.Writer, svc *chat.Service, sessionID, ownerID, question string) error {
	result, err := svc.SubmitTurn(ctx, chat.TurnRequest{SessionID: sessionID, OwnerID: ownerID, Question: question})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.Turn.Answer)
	if len(result.Turn.Citations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for idx, citation := range result.Turn.Citations {
			fmt.Fprintf(out, "%d. %s\n   %q\n", idx+1, citation.DocTitle, citation.Snippet)
		}
	}
	return nil
}

func tokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, expiresAt, err := auth.GenerateToken(userID, cfg.JWTSecret, cfg.JWTExpiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func clearCmd() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all documents and chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				fmt.Fprint(cmd.OutOrStdout(), "This will permanently delete all documents and chat sessions. Continue? [y/N]: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					return scanner.Err()
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "clear aborted")
					return nil
				}
			}

			cfg := config.Load()
			logger := logging.New(cfg.Log)
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.clear(ctx)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	return cmd
}
