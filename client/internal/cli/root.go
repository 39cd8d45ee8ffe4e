package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/evoapps/datastore/client/internal/remote"
	"github.com/evoapps/datastore/pkg/types"
)

const (
	defaultServer  = "http://localhost:8000"
	defaultAdmin   = "http://localhost:8001"
	defaultTimeout = 30 * time.Second
)

type options struct {
	server  string
	admin   string
	timeout time.Duration
}

func (o *options) client() *remote.Client {
	return remote.New(o.server, o.admin, o.timeout)
}

// NewRootCmd builds the datactl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "datactl",
		Short: "datactl reads, writes and watches documents on a datastore server",
		Long: `datactl is the command-line client for the datastore JSON document server.

Documents are addressed by their path below /data/, e.g. "orders/2024.json".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("DATASTORE_SERVER", defaultServer), "document router base URL")
	root.PersistentFlags().StringVar(&opts.admin, "admin", envOr("DATASTORE_ADMIN", defaultAdmin), "admin listener base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "per-request HTTP timeout")

	root.AddCommand(newGetCmd(opts), newPutCmd(opts), newWatchCmd(opts), newStatsCmd(opts), newHealthCmd(opts))
	return root
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := opts.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, doc, "", "  "); err != nil {
				return fmt.Errorf("server returned invalid JSON: %w", err)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

func newPutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put <path> [file|-]",
		Short: "Store a JSON document from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if len(args) == 1 || args[1] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if !json.Valid(body) {
				return fmt.Errorf("document is not valid JSON")
			}
			if err := opts.client().Put(cmd.Context(), args[0], body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d bytes)\n", args[0], len(body))
			return nil
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	var (
		match  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream document change events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			return opts.client().Watch(cmd.Context(), match, func(ev types.ChangeEvent) {
				if asJSON {
					enc.Encode(ev) //nolint:errcheck
					return
				}
				fmt.Fprintf(out, "%s %s %s (%d bytes)\n",
					ev.At.Format(time.RFC3339), ev.Op, ev.Path, ev.Size)
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "only show paths matching this glob (doublestar syntax)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print each event as a JSON line")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the server's request and write counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			routes := make([]string, 0, len(st.Requests))
			for r := range st.Requests {
				routes = append(routes, r)
			}
			sort.Strings(routes)
			for _, r := range routes {
				fmt.Fprintf(out, "requests{%s}\t%.0f\n", r, st.Requests[r])
			}
			fmt.Fprintf(out, "server_errors\t%.0f\n", st.ServerErrors)
			fmt.Fprintf(out, "bytes_written\t%.0f\n", st.BytesWritten)
			fmt.Fprintf(out, "documents_missing\t%.0f\n", st.Missing)
			fmt.Fprintf(out, "feed_clients\t%.0f\n", st.FeedClients)
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check data-root readiness; exits non-zero when unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s data_root=%s feed_clients=%d\n", h.Status, h.DataRoot, h.FeedClients)
			if h.Status != "ok" {
				return fmt.Errorf("server unavailable: %s", h.Error)
			}
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
