package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"nostrchat/internal/identity"
	"nostrchat/internal/nostr"
	"nostrchat/internal/payload"
	"nostrchat/internal/pool"
	"nostrchat/internal/publish"
	"nostrchat/internal/upload"
	"nostrchat/internal/views"
)

var dmCmd = &cobra.Command{
	Use:   "dm",
	Short: "Encrypted direct messages",
}

// dmSubscriptions opens the two halves of the session's DM mailbox:
// messages we sent and messages addressed to us. Relays require
// separate filters because authors and #p in one filter would be a
// conjunction.
func dmSubscriptions(ctx context.Context, sess *session, policy pool.EOSEPolicy) (sent, received *pool.MultiSubscription) {
	limit := 100
	sent = sess.pool.SubscribeMany(ctx, sess.settings.Relays, nostr.Filter{
		Kinds:   []int{nostr.KindEncryptedDM},
		Authors: []string{sess.keys.PublicKey},
		Limit:   limit,
	}, policy)
	received = sess.pool.SubscribeMany(ctx, sess.settings.Relays, nostr.Filter{
		Kinds: []int{nostr.KindEncryptedDM},
		PTags: []string{sess.keys.PublicKey},
		Limit: limit,
	}, policy)
	return sent, received
}

// collectBoth drains two aggregate subscriptions into ingest until the
// gate opens. Each subscription's EOSE nudges the gate; it opens when
// both have signalled or the timeout fires.
func collectBoth(sent, received *pool.MultiSubscription, gate *views.LoadingGate, ingest func(nostr.Event) bool) {
	sentEvents, receivedEvents := sent.Events, received.Events
	eoseCount := 0
	for {
		select {
		case evt, ok := <-sentEvents:
			if !ok {
				sentEvents = nil
				continue
			}
			ingest(evt)
		case evt, ok := <-receivedEvents:
			if !ok {
				receivedEvents = nil
				continue
			}
			ingest(evt)
		case <-sent.EOSE:
			if eoseCount++; eoseCount >= 2 {
				gate.SignalEOSE()
			}
		case <-received.EOSE:
			if eoseCount++; eoseCount >= 2 {
				gate.SignalEOSE()
			}
		case <-gate.Idle():
			for {
				select {
				case evt, ok := <-sentEvents:
					if !ok {
						return
					}
					ingest(evt)
				case evt, ok := <-receivedEvents:
					if !ok {
						return
					}
					ingest(evt)
				default:
					return
				}
			}
		}
	}
}

var dmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		cipher := identity.NewCipher(sess.keys)
		profiles := views.NewProfileDirectory()
		list := views.NewConversationList(sess.keys.PublicKey, cipher, profiles)

		// Two relay acks are enough for a responsive listing; the rest
		// trickle in behind the timeout.
		sent, received := dmSubscriptions(cmd.Context(), sess, pool.EOSECount(2))
		defer sent.Close()
		defer received.Close()

		gate := views.NewLoadingGate(views.ListingLoadTimeout)
		collectBoth(sent, received, gate, list.Ingest)

		conversations := list.Conversations()
		if len(conversations) == 0 {
			fmt.Println("no conversations")
			return nil
		}

		peers := make([]string, 0, len(conversations))
		for _, c := range conversations {
			peers = append(peers, c.Peer)
		}
		fetchProfiles(cmd.Context(), sess, profiles, peers)

		for _, c := range list.Conversations() {
			ts := time.Unix(c.CreatedAt, 0).Format("2006-01-02 15:04")
			direction := ""
			if c.FromSelf {
				direction = "you: "
			}
			fmt.Printf("[%s] %s: %s%s\n", ts, c.PeerName, direction, c.Preview)
		}
		return nil
	},
}

var dmChatCmd = &cobra.Command{
	Use:   "chat <pubkey|npub>",
	Short: "Show the conversation with one peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		peer, err := identity.ResolvePubkey(args[0])
		if err != nil {
			return err
		}

		cipher := identity.NewCipher(sess.keys)
		thread := views.NewThread(sess.keys.PublicKey, peer, cipher)

		sent, received := dmSubscriptions(cmd.Context(), sess, pool.EOSEAll)
		defer sent.Close()
		defer received.Close()

		gate := views.NewLoadingGate(views.ChatLoadTimeout)
		collectBoth(sent, received, gate, thread.Ingest)

		messages := thread.Messages()
		if len(messages) == 0 {
			fmt.Println("no messages")
			return nil
		}
		for _, msg := range messages {
			ts := time.Unix(msg.Event.CreatedAt, 0).Format("2006-01-02 15:04")
			who := nostr.ShortID(peer)
			if msg.FromSelf {
				who = "you"
			}
			fmt.Printf("[%s] %s: %s\n", ts, who, msg.Text)
			for _, att := range msg.Attachments {
				fmt.Printf("    [%s] %s\n", att.Kind, att.URL)
			}
		}
		return nil
	},
}

var dmAttach string

var dmSendCmd = &cobra.Command{
	Use:   "send <pubkey|npub> <text>",
	Short: "Send an encrypted message, optionally with an attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession(true)
		if err != nil {
			return err
		}
		defer sess.close()

		peer, err := identity.ResolvePubkey(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 90*time.Second)
		defer cancel()

		content := args[1]
		if dmAttach != "" {
			attachment, err := uploadAttachment(ctx, sess, dmAttach)
			if err != nil {
				return err
			}
			content, err = payload.Encode(args[1], []payload.Attachment{*attachment})
			if err != nil {
				return err
			}
		}

		coordinator := publish.NewCoordinator(sess.keys, sess.pool)
		ev, err := coordinator.DirectMessage(ctx, sess.settings.Relays, peer, content)
		if err != nil {
			return err
		}
		fmt.Printf("message sent (%s)\n", nostr.ShortID(ev.ID))
		return nil
	},
}

// uploadAttachment pushes a local file through the configured blob
// store and returns the attachment reference to embed in the payload.
func uploadAttachment(ctx context.Context, sess *session, filePath string) (*payload.Attachment, error) {
	if sess.settings.MediaEndpoint == "" {
		return nil, errors.New("no mediaEndpoint configured in settings")
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	client := upload.NewClient(sess.settings.MediaEndpoint)
	return client.Upload(ctx, filepath.Base(filePath), mime.TypeByExtension(filepath.Ext(filePath)), f)
}

func init() {
	dmSendCmd.Flags().StringVar(&dmAttach, "attach", "", "path of a file to upload and attach")
	dmCmd.AddCommand(dmListCmd, dmChatCmd, dmSendCmd)
	rootCmd.AddCommand(dmCmd)
}
