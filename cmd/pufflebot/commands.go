package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/masganem/PuffleBot/internal/store"
	"github.com/masganem/PuffleBot/internal/twitter"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var mediaURL string
	cmd := &cobra.Command{
		Use:   "send [recipient-id] [text]",
		Short: "Send one Direct Message, optionally with an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			journal, closeJournal, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer closeJournal()

			dispatcher, err := newDispatcher(cfg, journal)
			if err != nil {
				return err
			}

			res, err := dispatcher.Send(ctx, args[0], args[1], mediaURL)
			if err != nil {
				return fmt.Errorf("media upload: %w", err)
			}
			if !res.Delivered {
				return fmt.Errorf("direct message not delivered: %w", res.Err)
			}
			fmt.Printf("Delivered event %s to %s", res.EventID, res.RecipientID)
			if res.MediaID != "" {
				fmt.Printf(" with media %s", res.MediaID)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&mediaURL, "media", "", "image URL to attach")
	return cmd
}

func crcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crc [token]",
		Short: "Print the challenge response for a crc_token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Twitter.ConsumerSecret == "" {
				return fmt.Errorf("twitter.consumerSecret is not set")
			}
			return json.NewEncoder(os.Stdout).Encode(twitter.NewCRCResponse(cfg.Twitter.ConsumerSecret, args[0]))
		},
	}
}

func deliveriesCmd() *cobra.Command {
	var (
		limit     int
		abandoned bool
		uploadID  string
	)
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List recent Direct Message deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Store.Enabled {
				return fmt.Errorf("the journal is disabled (store.enabled=false)")
			}
			j, err := store.Open(cfg.Store.DBPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if uploadID != "" {
				return printUpload(ctx, j, uploadID)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if abandoned {
				uploads, err := j.ListAbandonedUploads(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "UPLOAD\tMEDIA ID\tSOURCE\tUPDATED\tERROR")
				for _, u := range uploads {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.MediaID, u.Source, u.UpdatedAt.Format(time.RFC3339), u.Error)
				}
				return nil
			}

			deliveries, err := j.ListDeliveries(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tRECIPIENT\tSTATUS\tEVENT\tMEDIA\tERROR")
			for _, d := range deliveries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.CreatedAt.Format(time.RFC3339), d.RecipientID, d.Status, d.EventID, d.MediaID, d.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows")
	cmd.Flags().BoolVar(&abandoned, "abandoned", false, "list uploads that were initiated but never finalized")
	cmd.Flags().StringVar(&uploadID, "upload", "", "show the full journal entry of one upload")
	return cmd
}

// printUpload writes one upload journal entry as JSON.
func printUpload(ctx context.Context, j *store.SQLiteJournal, id string) error {
	rec, err := j.GetUpload(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no upload %s in the journal", id)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
