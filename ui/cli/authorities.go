// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// findAuthority loads the authority snapshot and returns the authority with id.
func (a *app) findAuthority(ctx context.Context, id string) (model.Authority, error) {
	if err := a.open(); err != nil {
		return model.Authority{}, err
	}
	if err := a.disp.SyncAuthorities(ctx); err != nil {
		return model.Authority{}, err
	}
	for _, au := range a.disp.Authorities.Get() {
		if au.ID == id {
			return au, nil
		}
	}
	return model.Authority{}, fmt.Errorf("authority %s: %w", id, db.ErrNotFound)
}

func newAuthorityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "authority",
		Aliases: []string{"authorities", "ca"},
		Short:   "Manage certificate authorities",
	}
	cmd.AddCommand(
		newAuthorityListCmd(a),
		newAuthorityShowCmd(a),
		newAuthorityCreateCmd(a),
		newAuthoritySetCmd(a),
		newAuthorityDeleteCmd(a),
		newAuthorityKeysCmd(a),
		newTokenCmd(a),
		newRoleCmd(a),
	)
	return cmd
}

func newAuthorityListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List authorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.disp.SyncAuthorities(cmd.Context()); err != nil {
				return err
			}
			list := a.disp.Authorities.Get()
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, i18n.T("authorities.empty.title"))
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tALG\tHOSTS\tROLES\tTOKENS")
			for _, au := range list {
				roles := "-"
				if au.MatchRoles {
					roles = strings.Join(au.Roles, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n",
					au.ID, au.Name, au.Info.KeyAlg, au.HostCertificates, roles, len(au.HostTokens))
			}
			return w.Flush()
		},
	}
}

func printAuthority(out io.Writer, au model.Authority, publicURL string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", au.ID)
	fmt.Fprintf(w, "Name:\t%s\n", au.Name)
	fmt.Fprintf(w, "Algorithm:\t%s\n", au.Info.KeyAlg)
	fmt.Fprintf(w, "Host certificates:\t%t\n", au.HostCertificates)
	fmt.Fprintf(w, "Strict host checking:\t%t\n", au.StrictHostChecking)
	fmt.Fprintf(w, "Host domain:\t%s\n", au.HostDomain)
	fmt.Fprintf(w, "Host proxy:\t%s\n", au.HostProxy)
	fmt.Fprintf(w, "Expire (min):\t%s\n", au.Expire)
	fmt.Fprintf(w, "Host expire (min):\t%s\n", au.HostExpire)
	fmt.Fprintf(w, "Match roles:\t%t\n", au.MatchRoles)
	fmt.Fprintf(w, "Roles:\t%s\n", strings.Join(au.Roles, ", "))
	fmt.Fprintf(w, "Host tokens:\t%s\n", strings.Join(au.HostTokens, ", "))
	fmt.Fprintf(w, "Download URL:\t%s/ssh_public_key/%s\n", strings.TrimRight(publicURL, "/"), au.ID)
	_ = w.Flush()
	fmt.Fprintln(out, strings.TrimSpace(au.PublicKey))
}

func newAuthorityShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			au, err := a.findAuthority(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAuthority(cmd.OutOrStdout(), au, a.cfg.Server.PublicURL)
			return nil
		},
	}
}

// authorityFlags are the editable fields shared by create and set.
type authorityFlags struct {
	name, hostDomain, hostProxy string
	expire, hostExpire          string
	hostCerts, strict, match    bool
	roles                       []string
}

func (f *authorityFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Display name")
	fl.StringVar(&f.hostDomain, "host-domain", "", "Domain host certificates are limited to")
	fl.StringVar(&f.hostProxy, "host-proxy", "", "Jump host (user@host) for clients")
	fl.StringVar(&f.expire, "expire", "", "User certificate lifetime in minutes")
	fl.StringVar(&f.hostExpire, "host-expire", "", "Host certificate lifetime in minutes")
	fl.BoolVar(&f.hostCerts, "host-certificates", false, "Enable host certificates")
	fl.BoolVar(&f.strict, "strict-host-checking", false, "Require host certificates on clients")
	fl.BoolVar(&f.match, "match-roles", false, "Only sign for matching roles")
	fl.StringSliceVar(&f.roles, "role", nil, "Role (repeatable, replaces the role set)")
}

// apply copies the flags the user actually set onto au.
func (f *authorityFlags) apply(cmd *cobra.Command, au *model.Authority) {
	fl := cmd.Flags()
	if fl.Changed("name") {
		au.Name = f.name
	}
	if fl.Changed("host-domain") {
		au.HostDomain = f.hostDomain
	}
	if fl.Changed("host-proxy") {
		au.HostProxy = f.hostProxy
	}
	if fl.Changed("expire") {
		au.Expire = model.ParseMinutes(f.expire)
	}
	if fl.Changed("host-expire") {
		au.HostExpire = model.ParseMinutes(f.hostExpire)
	}
	if fl.Changed("host-certificates") {
		au.HostCertificates = f.hostCerts
	}
	if fl.Changed("strict-host-checking") {
		au.StrictHostChecking = f.strict
	}
	if fl.Changed("match-roles") {
		au.MatchRoles = f.match
	}
	if fl.Changed("role") {
		au.Roles = db.NormalizeRoles(f.roles)
	}
}

var authorityFlagNames = []string{
	"name", "host-domain", "host-proxy", "expire", "host-expire",
	"host-certificates", "strict-host-checking", "match-roles", "role",
}

func (f *authorityFlags) anyChanged(cmd *cobra.Command) bool {
	return slices.ContainsFunc(authorityFlagNames, cmd.Flags().Changed)
}

func newAuthorityCreateCmd(a *app) *cobra.Command {
	var f authorityFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an authority with a fresh signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			var initial *model.Authority
			if f.anyChanged(cmd) {
				initial = &model.Authority{
					Name:       db.DefaultAuthorityName,
					Expire:     model.Minutes(a.cfg.Authority.Expire),
					HostExpire: model.Minutes(a.cfg.Authority.HostExpire),
				}
				f.apply(cmd, initial)
			}
			au, err := a.disp.Create(cmd.Context(), initial)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.authority_created", au.ID))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newAuthoritySetCmd(a *app) *cobra.Command {
	var f authorityFlags
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Change fields of an authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			au, err := a.findAuthority(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !f.anyChanged(cmd) {
				return fmt.Errorf("nothing to change")
			}
			f.apply(cmd, &au)
			if _, err := a.disp.Commit(cmd.Context(), au); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("authority.saved"))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// confirm asks a yes/no question on stdin. Without a terminal the answer is no.
func confirm(cmd *cobra.Command, question string) bool {
	if !isTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func newAuthorityDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an authority and its signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			au, err := a.findAuthority(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, i18n.T("cli.confirm_delete", au.Name)) {
				return fmt.Errorf("aborted; pass --yes to delete without a prompt")
			}
			if err := a.disp.Remove(cmd.Context(), au.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.authority_deleted", au.ID))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newAuthorityKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [id...]",
		Short: "Print public keys in authorized_keys format",
		Long:  "Prints the public keys of the given authorities, or of all authorities when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			keys, err := a.backend.PublicKeys(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(k))
			}
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage host tokens of an authority",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <authority-id>",
			Short: "Create a host token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.open(); err != nil {
					return err
				}
				token, err := a.disp.CreateToken(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <authority-id> <token>",
			Short: "Delete a host token",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.open(); err != nil {
					return err
				}
				if err := a.disp.DeleteToken(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.token_deleted"))
				return nil
			},
		},
	)
	return cmd
}

func newRoleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles of an authority",
	}
	edit := func(op func(roles []string, role string) []string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			au, err := a.findAuthority(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			au.Roles = db.NormalizeRoles(op(slices.Clone(au.Roles), args[1]))
			if _, err := a.disp.Commit(cmd.Context(), au); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(au.Roles, ","))
			return nil
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <authority-id> <role>",
			Short: "Add a role",
			Args:  cobra.ExactArgs(2),
			RunE: edit(func(roles []string, role string) []string {
				return append(roles, role)
			}),
		},
		&cobra.Command{
			Use:   "rm <authority-id> <role>",
			Short: "Remove a role",
			Args:  cobra.ExactArgs(2),
			RunE: edit(func(roles []string, role string) []string {
				return slices.DeleteFunc(roles, func(r string) bool { return r == role })
			}),
		},
	)
	return cmd
}
