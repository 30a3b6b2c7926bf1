// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// writeCompressedBackup streams data as zstd-compressed JSON to w.
func writeCompressedBackup(w io.Writer, data model.Backup) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("could not encode json to zstd writer: %w", err)
	}
	return zw.Close()
}

// readCompressedBackup decodes a zstd-compressed JSON backup from r.
func readCompressedBackup(r io.Reader) (model.Backup, error) {
	var data model.Backup
	zr, err := zstd.NewReader(r)
	if err != nil {
		return data, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return data, fmt.Errorf("could not decode json from zstd reader: %w", err)
	}
	return data, nil
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [output-file]",
		Short: "Create a compressed (zstd) JSON backup of the database",
		Long: `Dumps all authorities (including their signing keys) and nodes into a
single Zstandard-compressed JSON file. Keep the file as safe as the
database itself.

If no output file is given, 'keymaster-ca-backup-YYYY-MM-DD.json.zst' is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFile := fmt.Sprintf("keymaster-ca-backup-%s.json.zst", time.Now().Format("2006-01-02"))
			if len(args) > 0 {
				outputFile = args[0]
				if !strings.HasSuffix(outputFile, ".zst") {
					outputFile += ".zst"
				}
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			data, err := s.ExportBackup(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s", i18n.T("backup.cli_error_export", err))
			}
			f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("%s", i18n.T("backup.cli_error_write", err))
			}
			defer func() { _ = f.Close() }()
			if err := writeCompressedBackup(f, data); err != nil {
				return fmt.Errorf("%s", i18n.T("backup.cli_error_write", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("backup.cli_success", outputFile))
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "restore <backup-file.zst>",
		Short: "Restore the database from a compressed JSON backup",
		Long: `Restores authorities and nodes from a Zstandard-compressed JSON backup.
By default only records that do not exist yet are added.

--full wipes all existing data before importing. It is not reversible.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("%s", i18n.T("restore.cli_error_read", err))
			}
			defer func() { _ = f.Close() }()
			data, err := readCompressedBackup(f)
			if err != nil {
				return fmt.Errorf("%s", i18n.T("restore.cli_error_read", err))
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if err := s.ImportBackup(cmd.Context(), data, full); err != nil {
				return fmt.Errorf("%s", i18n.T("restore.cli_error_import", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("restore.cli_success"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Perform a full, destructive restore (wipes all existing data first)")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			entries, err := s.ListAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Details)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show (0 for all)")
	return cmd
}

func newDBMaintainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "db-maintain",
		Short: "Run database maintenance (VACUUM/ANALYZE/OPTIMIZE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if err := s.Maintain(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.maintenance_done"))
			return nil
		},
	}
}
