package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nostrchat/internal/nostr"
	"nostrchat/internal/pool"
	"nostrchat/internal/publish"
	"nostrchat/internal/views"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Public chat channels",
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels visible on the configured relays",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		directory := views.NewChannelDirectory()
		limit := 100
		sub := sess.pool.SubscribeMany(cmd.Context(), sess.settings.Relays, nostr.Filter{
			Kinds: []int{nostr.KindChannelCreate, nostr.KindChannelMetadata},
			Limit: limit,
		}, pool.EOSEAll)
		defer sub.Close()

		gate := views.NewLoadingGate(views.ListingLoadTimeout)
		collectUntilIdle(sub, gate, directory.Ingest)

		channels := directory.Channels()
		if len(channels) == 0 {
			fmt.Println("no channels found")
			return nil
		}
		for _, ch := range channels {
			joined := ""
			for _, id := range sess.settings.JoinedChannels {
				if id == ch.ID {
					joined = " (joined)"
					break
				}
			}
			fmt.Printf("%s  %s%s\n", nostr.ShortID(ch.ID), ch.Name, joined)
			if ch.About != "" {
				fmt.Printf("          %s\n", ch.About)
			}
		}
		return nil
	},
}

var channelAbout string

var channelCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		coordinator := publish.NewCoordinator(sess.keys, sess.pool)
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		channelID, err := coordinator.ChannelCreate(ctx, sess.settings.Relays, args[0], channelAbout)
		if err != nil {
			return err
		}

		sess.settings.JoinChannel(channelID)
		if err := sess.settings.Save(); err != nil {
			return err
		}
		fmt.Printf("channel created: %s\n", channelID)
		return nil
	},
}

var channelChatCmd = &cobra.Command{
	Use:   "chat <channel-id>",
	Short: "Show a channel's recent messages and active members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		channelID := args[0]
		feed := views.NewFeed(views.OldestFirst, 200)
		roster := views.NewChannelRoster(channelID)
		profiles := views.NewProfileDirectory()

		limit := 200
		sub := sess.pool.SubscribeMany(cmd.Context(), sess.settings.Relays, nostr.Filter{
			Kinds: []int{nostr.KindChannelMessage},
			ETags: []string{channelID},
			Limit: limit,
		}, pool.EOSEAll)
		defer sub.Close()

		gate := views.NewLoadingGate(views.ChatLoadTimeout)
		collectUntilIdle(sub, gate, func(evt nostr.Event) bool {
			roster.Ingest(evt)
			return feed.Ingest(evt)
		})

		members := roster.Members()
		fetchProfiles(cmd.Context(), sess, profiles, members)

		for _, evt := range feed.Events() {
			ts := time.Unix(evt.CreatedAt, 0).Format("2006-01-02 15:04")
			fmt.Printf("[%s] %s: %s\n", ts, profiles.NameFor(evt.PubKey), evt.Content)
		}
		if len(members) > 0 {
			fmt.Printf("\nrecently active (%d):", len(members))
			for _, member := range members {
				fmt.Printf(" %s", profiles.NameFor(member))
			}
			fmt.Println()
		}
		return nil
	},
}

var channelSendCmd = &cobra.Command{
	Use:   "send <channel-id> <text>",
	Short: "Post a message to a channel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		coordinator := publish.NewCoordinator(sess.keys, sess.pool)
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		ev, err := coordinator.ChannelMessage(ctx, sess.settings.Relays, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("message sent (%s)\n", nostr.ShortID(ev.ID))
		return nil
	},
}

func init() {
	channelCreateCmd.Flags().StringVar(&channelAbout, "about", "", "channel description")
	channelCmd.AddCommand(channelListCmd, channelCreateCmd, channelChatCmd, channelSendCmd)
	rootCmd.AddCommand(channelCmd)
}
