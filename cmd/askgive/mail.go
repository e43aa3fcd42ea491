package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"askgive/internal/connectors"
	"askgive/internal/listener"
	"askgive/internal/server"
)

var (
	mailProvider  string
	mailLabel     string
	mailMax       int
	mailMessageID string
	mailBatch     int
	serveAddr     string
	serveListen   bool
)

var mailFetchCmd = &cobra.Command{
	Use:   "mail:fetch",
	Short: "Fetch roster emails from the mailbox",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		conn, err := listener.MakeConnector(cmd.Context(), a.Cfg, mailProvider)
		if err != nil {
			return err
		}
		fetch := connectors.NewFetchService(a.DB, a.Cfg.RawMailDir, conn, a.Log)
		result, err := fetch.FetchAndStore(cmd.Context(), mailLabel, mailMax)
		if err != nil {
			return err
		}
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", mailProvider, result.Fetched, result.Stored)
		return nil
	},
}

var mailProcessCmd = &cobra.Command{
	Use:   "mail:process",
	Short: "Import rosters from fetched emails",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if strings.TrimSpace(mailMessageID) != "" {
			res, err := a.Processor.ProcessMessage(cmd.Context(), mailProvider, mailMessageID)
			if err != nil {
				return err
			}
			fmt.Printf("processed email id=%d status=%s members=%d\n", res.EmailID, res.Status, res.Members)
			return nil
		}
		res, err := a.Processor.ProcessPending(cmd.Context(), mailBatch, mailProvider)
		if err != nil {
			return err
		}
		fmt.Printf("processed pending emails=%d skipped=%d failed=%d\n", res.Processed, res.Skipped, res.Failed)
		return nil
	},
}

var mailListenCmd = &cobra.Command{
	Use:   "mail:listen",
	Short: "Poll the mailbox and the roster sheet until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		return listener.NewService(a.DB, a.Cfg, a.Processor, a.Syncer, a.Log).Run(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the roster HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		addr := firstNonBlank(serveAddr, a.Cfg.HTTPAddr)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return server.New(a.DB, a.Processor, a.Syncer, a.Log).ListenAndServe(ctx, addr)
		})
		if serveListen {
			g.Go(func() error {
				return listener.NewService(a.DB, a.Cfg, a.Processor, a.Syncer, a.Log).Run(ctx)
			})
		}
		return g.Wait()
	},
}

func init() {
	for _, c := range []*cobra.Command{mailFetchCmd, mailProcessCmd} {
		c.Flags().StringVar(&mailProvider, "provider", "gmail", "gmail|imap")
	}
	mailFetchCmd.Flags().StringVar(&mailLabel, "label", "INBOX", "mailbox/label")
	mailFetchCmd.Flags().IntVar(&mailMax, "max", 50, "max messages")

	mailProcessCmd.Flags().StringVar(&mailMessageID, "messageId", "", "specific message-id")
	mailProcessCmd.Flags().IntVar(&mailBatch, "batch", 20, "batch size")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveListen, "listen", false, "also run the mail/sheet listener")
}
