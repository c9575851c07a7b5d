package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CARBONMOLECULE09/bear-code/internal/bulkindex"
)

var (
	serviceURL string
	userID     string
	debug      bool
)

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "codectl",
		Short:         "CLI client for the bear-code search service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: "2006-01-02 15:04:05",
				NoColor:    true,
			})
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serviceURL, "service-url", getEnv("BEARCODE_SERVICE_URL", "http://localhost:8080"), "Base URL of the code search service")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", getEnv("BEARCODE_USER_ID", ""), "Caller user id sent as X-User-ID")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable verbose debug output")

	rootCmd.AddCommand(newOpenAccountCmd())
	rootCmd.AddCommand(newBalanceCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPurchaseCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newIndexDirCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newListDocumentsCmd())
	rootCmd.AddCommand(newDeleteDocumentCmd())
	rootCmd.AddCommand(newStatsCmd())
	return rootCmd
}

// run executes one API call with a timeout and pretty-prints the JSON answer.
func run(cmd *cobra.Command, method, path string, query map[string]string, body interface{}) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	start := time.Now()
	data, err := newAPIClient(serviceURL, userID).do(ctx, method, path, query, body)
	log.Debug().Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Err(err).Msg("request")
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func printJSON(out io.Writer, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func pageQuery(page, limit int) map[string]string {
	q := map[string]string{}
	if page > 0 {
		q["page"] = strconv.Itoa(page)
	}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	return q
}

func newOpenAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open-account",
		Short: "Open a credit account for the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/accounts", nil, nil)
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the caller's credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/credits/balance", nil, nil)
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List credit transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/credits/history", pageQuery(page, limit), nil)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (max 100)")
	return cmd
}

func newPurchaseCmd() *cobra.Command {
	var amount int64
	var method string
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Buy credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodPost, "/credits/purchase", nil, map[string]interface{}{
				"amount":        amount,
				"paymentMethod": method,
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "Credits to buy (required)")
	cmd.Flags().StringVar(&method, "payment-method", "card", "Payment method label")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var language, project string
	var tags []string
	cmd := &cobra.Command{
		Use:   "index FILE",
		Short: "Index a source file (costs credits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if language == "" {
				language = languageFromExt(args[0])
			}
			meta := map[string]interface{}{
				"fileName": filepath.Base(args[0]),
				"filePath": args[0],
			}
			if project != "" {
				meta["projectName"] = project
			}
			if len(tags) > 0 {
				meta["tags"] = tags
			}
			return run(cmd, http.MethodPost, "/search/index", nil, map[string]interface{}{
				"code":     string(code),
				"language": language,
				"metadata": meta,
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (defaults from file extension)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var query, language string
	var limit int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed code (costs credits)",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"query": query, "limit": limit}
			if language != "" {
				body["filters"] = map[string]interface{}{"language": language}
			}
			return run(cmd, http.MethodPost, "/search/query", nil, body)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search query text (required)")
	cmd.Flags().IntVarP(&limit, "limit", "k", 10, "Maximum results (1-100)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Only match this language")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newListDocumentsCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list-documents",
		Short: "List indexed documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/search/documents", pageQuery(page, limit), nil)
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (max 100)")
	return cmd
}

func newDeleteDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-document DOCUMENT_ID",
		Short: "Delete an indexed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd, http.MethodDelete, "/search/documents/"+args[0], nil, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage totals for the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, http.MethodGet, "/users/stats", nil, nil)
		},
	}
}

func languageFromExt(path string) string {
	if l := bulkindex.LanguageFor(path); l != "" {
		return l
	}
	return "text"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
