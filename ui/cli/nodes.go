// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

func newNodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "node",
		Aliases: []string{"nodes"},
		Short:   "Manage nodes authorities are deployed to",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.disp.SyncNodes(cmd.Context()); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tAUTHORITIES")
			for _, n := range a.disp.Nodes.Get() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.Name, n.Type, strings.Join(n.Authorities, ","))
			}
			return w.Flush()
		},
	}

	var nodeType string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			n, err := a.disp.CommitNode(cmd.Context(), model.Node{Name: args[0], Type: model.NodeType(nodeType)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.node_created", n.ID))
			return nil
		},
	}
	create.Flags().StringVarP(&nodeType, "type", "t", string(model.NodeUser), "Node type (management, user, proxy)")

	var yes bool
	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if !yes && !confirm(cmd, i18n.T("cli.confirm_delete_node", args[0])) {
				return fmt.Errorf("aborted; pass --yes to delete without a prompt")
			}
			if err := a.disp.RemoveNode(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.node_deleted", args[0]))
			return nil
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	var undeploy bool
	deploy := &cobra.Command{
		Use:   "deploy <node-id> <authority-id>",
		Short: "Deploy an authority to a node (or withdraw it with --undeploy)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.disp.Deploy(cmd.Context(), args[0], args[1], !undeploy); err != nil {
				return err
			}
			key := "cli.deployed"
			if undeploy {
				key = "cli.undeployed"
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T(key, args[1], args[0]))
			return nil
		},
	}
	deploy.Flags().BoolVar(&undeploy, "undeploy", false, "Withdraw the authority instead")

	cmd.AddCommand(list, create, remove, deploy)
	return cmd
}

func newHostCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host certificate operations",
	}

	var token, keyFile string
	var hostnames []string
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Sign a host public key with the authority a host token belongs to",
		Long: `Signs a host public key. The host token selects the authority; every
hostname must lie inside the authority's host domain.

Example:
  keymaster-ca host sign --token <token> --key /etc/ssh/ssh_host_ed25519_key.pub --hostname web1.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("reading host key: %w", err)
			}
			if err := a.open(); err != nil {
				return err
			}
			cert, err := a.backend.SignHostCertificate(cmd.Context(), token, string(pub), hostnames)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(cert))
			return nil
		},
	}
	sign.Flags().StringVar(&token, "token", "", "Host token")
	sign.Flags().StringVar(&keyFile, "key", "", "Host public key file")
	sign.Flags().StringSliceVar(&hostnames, "hostname", nil, "Hostname (repeatable)")
	_ = sign.MarkFlagRequired("token")
	_ = sign.MarkFlagRequired("key")
	_ = sign.MarkFlagRequired("hostname")

	cmd.AddCommand(sign)
	return cmd
}
