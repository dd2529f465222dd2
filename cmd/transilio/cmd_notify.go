// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/plex"
)

var (
	notifyMessage string
	notifyUsers   string
	notifyBlocked string
	notifyNoSelf  bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a push notification through plex.tv",
	Long: `Send a message to the owner account and shared users as a plex.tv
push notification, the same channel the daemon could use for alerts.
Useful for testing mobile delivery before enabling anything automated.`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	f := notifyCmd.Flags()
	f.StringVarP(&notifyMessage, "message", "m", "", "message to send")
	f.StringVarP(&notifyUsers, "users", "u", "", "comma-separated usernames to include (default: all shared users)")
	f.StringVar(&notifyBlocked, "blockedusers", "", "comma-separated usernames to exclude")
	f.BoolVar(&notifyNoSelf, "noself", false, "do not notify the owner account")
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if notifyMessage == "" {
		return errors.New("notify requires a message (--message)")
	}

	ctx := cmd.Context()

	client, err := plex.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to plex: %w", err)
	}

	// The server token doubles as the owner's plex.tv token.
	account := plex.NewAccount(client.Token(), plex.Options{IgnoreCerts: cfg.Security.IgnoreCerts})

	self, err := account.User(ctx)
	if err != nil {
		return fmt.Errorf("resolve plex.tv account: %w", err)
	}
	friends, err := account.Friends(ctx)
	if err != nil {
		return fmt.Errorf("list shared users: %w", err)
	}

	include := splitUsers(notifyUsers)
	exclude := splitUsers(notifyBlocked)

	var to []int64
	for _, friend := range friends {
		if len(include) > 0 && !slices.Contains(include, friend.Username) {
			continue
		}
		if slices.Contains(exclude, friend.Username) {
			continue
		}
		to = append(to, friend.ID)
	}
	if !notifyNoSelf {
		to = append(to, self.ID)
	}
	if len(to) == 0 {
		return errors.New("no valid users to notify")
	}

	identity, err := client.Identity(ctx)
	if err != nil {
		return fmt.Errorf("read server identity: %w", err)
	}
	serverName := identity.FriendlyName
	if serverName == "" {
		serverName = cfg.PlexTV.ServerName
	}

	if err := account.Notify(ctx, plex.Notification{
		MachineIdentifier: identity.MachineIdentifier,
		ServerName:        serverName,
		Message:           notifyMessage,
		To:                to,
	}); err != nil {
		return err
	}

	logging.Info().Int("recipients", len(to)).Msg("Notification sent")
	return nil
}

func splitUsers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
