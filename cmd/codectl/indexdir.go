package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CARBONMOLECULE09/bear-code/internal/bulkindex"
)

// apiUploader indexes files through the REST API.
type apiUploader struct {
	c *apiClient
}

func (u apiUploader) IndexFile(ctx context.Context, f bulkindex.SourceFile, project string) (string, error) {
	data, err := u.c.do(ctx, http.MethodPost, "/search/index", nil, map[string]interface{}{
		"code":     f.Code,
		"language": f.Language,
		"metadata": map[string]interface{}{
			"fileName":    f.RelPath,
			"filePath":    f.RelPath,
			"projectName": project,
			"contentHash": f.Hash,
		},
	})
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusPaymentRequired {
			return "", fmt.Errorf("%w: %v", bulkindex.ErrStop, err)
		}
		return "", err
	}
	var rec struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (u apiUploader) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := u.c.do(ctx, http.MethodDelete, "/search/documents/"+documentID, nil, nil)
	return err
}

func newIndexDirCmd() *cobra.Command {
	var project, stateDir string
	cmd := &cobra.Command{
		Use:   "index-dir DIR",
		Short: "Index every changed source file under DIR (costs credits per file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			st, err := bulkindex.NewState(stateDir)
			if err != nil {
				return err
			}
			ix := bulkindex.New(bulkindex.Config{UserID: userID, Project: project},
				apiUploader{c: newAPIClient(serviceURL, userID)}, st, log.Logger)
			sum, runErr := ix.Run(cmd.Context(), args[0])
			out, err := json.Marshal(sum)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name (defaults to the directory name)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Where indexed file hashes are kept (default ~/.bearcode/index-state)")
	return cmd
}
