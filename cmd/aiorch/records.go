package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var (
		usageType   string
		limit       int
		fingerprint string
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print recent execution records",
		Long:  "Lists execution records newest first, optionally for one usage type or one request fingerprint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, logger)
			defer a.Close()
			if err := a.openSQL(cmd.Context()); err != nil {
				return err
			}

			var recs []domain.ExecutionRecord
			if fingerprint != "" {
				recs, err = a.records.ByFingerprint(cmd.Context(), fingerprint)
			} else {
				recs, err = a.records.ListRecent(cmd.Context(), usageType, limit)
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tUSAGE\tCONFIG\tMODEL\tATTEMPT\tOUTCOME\tTIER\tTOKENS\tLATENCY\tERROR")
			for i := range recs {
				r := &recs[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"),
					r.UsageType, dash(r.ConfigID), dash(r.Model), r.Attempt, r.Outcome,
					dash(string(r.CacheTier)), r.InputTokens, r.OutputTokens, r.Latency, r.Error,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&usageType, "usage-type", "u", "", "filter by usage type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of records")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "show every attempt of one request fingerprint")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
