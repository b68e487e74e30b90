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

var feedLimit int

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show recent public notes from the configured relays",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(false)
		if err != nil {
			return err
		}
		defer sess.close()

		feed := views.NewFeed(views.NewestFirst, feedLimit)
		profiles := views.NewProfileDirectory()

		sub := sess.pool.SubscribeMany(cmd.Context(), sess.settings.Relays, nostr.Filter{
			Kinds: []int{nostr.KindTextNote},
			Limit: feedLimit,
		}, pool.EOSEAll)
		defer sub.Close()

		gate := views.NewLoadingGate(views.ListingLoadTimeout)
		collectUntilIdle(sub, gate, feed.Ingest)

		events := feed.Events()
		if len(events) == 0 {
			fmt.Println("no notes received")
			return nil
		}

		authors := make([]string, 0, len(events))
		seen := make(map[string]bool)
		for _, evt := range events {
			if !seen[evt.PubKey] {
				seen[evt.PubKey] = true
				authors = append(authors, evt.PubKey)
			}
		}
		fetchProfiles(cmd.Context(), sess, profiles, authors)

		for _, evt := range events {
			ts := time.Unix(evt.CreatedAt, 0).Format("2006-01-02 15:04")
			fmt.Printf("[%s] %s: %s\n", ts, profiles.NameFor(evt.PubKey), evt.Content)
		}
		return nil
	},
}

// fetchProfiles resolves kind-0 metadata for a set of authors into the
// directory, bounded by the listing timeout.
func fetchProfiles(ctx context.Context, sess *session, profiles *views.ProfileDirectory, authors []string) {
	if len(authors) == 0 {
		return
	}
	limit := len(authors) * 2
	sub := sess.pool.SubscribeMany(ctx, sess.settings.Relays, nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: authors,
		Limit:   limit,
	}, pool.EOSEAll)
	defer sub.Close()

	gate := views.NewLoadingGate(views.ListingLoadTimeout)
	collectUntilIdle(sub, gate, profiles.Ingest)
}

var noteCmd = &cobra.Command{
	Use:   "note <text>",
	Short: "Publish a public note",
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

		ev, err := coordinator.Note(ctx, sess.settings.Relays, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("note published (%s)\n", nostr.ShortID(ev.ID))
		return nil
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 50, "maximum notes to show")
	rootCmd.AddCommand(feedCmd, noteCmd)
}
