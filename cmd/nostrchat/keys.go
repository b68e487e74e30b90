package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nostrchat/internal/config"
	"nostrchat/internal/identity"
	"nostrchat/internal/nostr"
	"nostrchat/internal/pool"
	"nostrchat/internal/publish"
	"nostrchat/internal/views"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new keypair and store it in settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := identity.Generate()
		if err != nil {
			return err
		}

		settings := config.Load()
		settings.Nsec = keys.Nsec
		if err := settings.Save(); err != nil {
			return err
		}

		fmt.Printf("npub: %s\n", keys.Npub)
		fmt.Printf("nsec: %s (stored in %s; keep it secret)\n", keys.Nsec, config.Path())
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <nsec>",
	Short: "Store an existing secret key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := identity.FromNsec(args[0])
		if err != nil {
			return err
		}

		settings := config.Load()
		settings.Nsec = keys.Nsec
		if err := settings.Save(); err != nil {
			return err
		}

		fmt.Printf("logged in as %s\n", keys.Npub)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [pubkey|npub]",
	Short: "Show a profile (defaults to your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(len(args) == 0)
		if err != nil {
			return err
		}
		defer sess.close()

		var pubkey string
		if len(args) == 1 {
			pubkey, err = identity.ResolvePubkey(args[0])
			if err != nil {
				return err
			}
		} else {
			pubkey = sess.keys.PublicKey
		}

		directory := views.NewProfileDirectory()
		limit := 5
		sub := sess.pool.SubscribeMany(cmd.Context(), sess.settings.Relays, nostr.Filter{
			Kinds:   []int{nostr.KindProfileMetadata},
			Authors: []string{pubkey},
			Limit:   limit,
		}, pool.EOSEAll)
		defer sub.Close()

		gate := views.NewLoadingGate(views.ListingLoadTimeout)
		collectUntilIdle(sub, gate, directory.Ingest)

		profile := directory.Get(pubkey)
		if profile == nil {
			fmt.Println("no profile found")
			return nil
		}
		out, _ := json.MarshalIndent(profile, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var (
	profileName    string
	profileAbout   string
	profilePicture string
)

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Publish your profile metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		coordinator := publish.NewCoordinator(sess.keys, sess.pool)
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		ev, err := coordinator.ProfileMetadata(ctx, sess.settings.Relays, profileName, profileAbout, profilePicture)
		if err != nil {
			return err
		}
		fmt.Printf("profile published (%s)\n", nostr.ShortID(ev.ID))
		return nil
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&profileName, "name", "", "display name")
	profileSetCmd.Flags().StringVar(&profileAbout, "about", "", "short bio")
	profileSetCmd.Flags().StringVar(&profilePicture, "picture", "", "avatar URL")

	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	rootCmd.AddCommand(keygenCmd, loginCmd, profileCmd)
}
