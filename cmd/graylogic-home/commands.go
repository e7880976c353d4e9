package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-home/internal/auth"
	"github.com/nerrad567/gray-logic-home/internal/automation"
)

// newValidateCmd checks a home document without starting anything.
// Quarantined entries are reported but do not fail validation; only a
// document that cannot be decoded does.
func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <home.yaml>",
		Short: "Validate a home automation document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := automation.LoadConfigFile(args[0])
			if err != nil {
				return fmt.Errorf("validating %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d commands, %d scenes, %d sensors, %d keys\n",
				args[0], len(cfg.Commands), len(cfg.LightScenes), len(cfg.Sensors), len(cfg.Keypad.Keys))
			for _, q := range cfg.Quarantined {
				fmt.Fprintf(out, "  quarantined %s %q: %s\n", q.Section, q.Name, q.Error)
			}

			if strict && len(cfg.Quarantined) > 0 {
				return fmt.Errorf("%d entries quarantined", len(cfg.Quarantined))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any entry is quarantined")
	return cmd
}

// newTokenCmd issues an API bearer token signed with the configured secret.
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(getConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return fmt.Errorf("security.jwt.secret is not set: API auth is disabled")
			}

			r := auth.Role(strings.ToLower(role))
			if !auth.IsValidRole(r) {
				return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWT.AccessTokenTTL
			}

			token, err := auth.GenerateAccessToken(subject, r, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, recorded as the command source")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer, operator or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-home %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
