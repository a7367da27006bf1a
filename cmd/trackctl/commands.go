package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack/fake"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type packagesClient interface {
	ValidateToken(ctx context.Context) (bool, error)
	GetPackages(ctx context.Context) ([]*models.Package, error)
	AddPackage(ctx context.Context, trackingNumber, title string) error
	ArchivePackage(ctx context.Context, trackingNumber string) error
}

type clientFactory func(cfg *config.Config) (packagesClient, error)

func defaultClientFactory(cfg *config.Config) (packagesClient, error) {
	switch cfg.TrackSync.ClientMode {
	case "fake":
		return fake.New(), nil
	case "", "live":
		if cfg.SeventeenTrack.APIKey == "" {
			return nil, errors.New("seventeentrack.api_key is required (or TRACKSYNC_API_KEY)")
		}
		c := seventeentrack.New(cfg.SeventeenTrack.BaseURL, cfg.SeventeenTrack.APIKey)
		c.WithTimeout(time.Duration(cfg.SeventeenTrack.RequestTimeoutSeconds) * time.Second)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown client_mode %q", cfg.TrackSync.ClientMode)
	}
}

type rootOptions struct {
	configPath string
	asJSON     bool
	newClient  clientFactory

	cfg    *config.Config
	client packagesClient
}

func newRootCommand(newClient clientFactory) *cobra.Command {
	o := &rootOptions{newClient: newClient}
	cmd := &cobra.Command{
		Use:   "trackctl",
		Short: "Inspect and manage a 17TRACK account",
		Long: `trackctl talks to the 17TRACK API directly: it validates the API key, lists packages
grouped by status and registers or archives tracking numbers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
	}
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "Config file (defaults to $configPath)")
	cmd.PersistentFlags().BoolVar(&o.asJSON, "json", false, "Print JSON instead of a table")
	cmd.AddCommand(
		newValidateCmd(o),
		newListCmd(o),
		newSummaryCmd(o),
		newAddCmd(o),
		newArchiveCmd(o),
	)
	return cmd
}

func (o *rootOptions) setup() error {
	path := o.configPath
	if path == "" {
		path = os.Getenv("configPath")
	}
	if path == "" {
		return errors.New("config path is required: pass --config or set configPath")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	client, err := o.newClient(cfg)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.client = client
	return nil
}

func (o *rootOptions) display() coordinator.Options {
	return coordinator.Options{
		ShowArchived:  o.cfg.SeventeenTrack.ShowArchived,
		ShowDelivered: o.cfg.SeventeenTrack.ShowDelivered,
	}
}

func (o *rootOptions) snapshot(ctx context.Context) (*coordinator.Snapshot, error) {
	pkgs, err := o.client.GetPackages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get packages")
	}
	return coordinator.BuildSnapshot(pkgs), nil
}

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that 17TRACK accepts the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := o.client.ValidateToken(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "validate token")
			}
			if !ok {
				return errors.New("api key rejected by 17TRACK")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "api key accepted")
			return nil
		},
	}
}

func newListCmd(o *rootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := o.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			pkgs := o.display().VisiblePackages(snap)
			if status != "" {
				pkgs = filterByStatus(pkgs, models.StatusSlug(status))
			}
			if o.asJSON {
				return writeJSON(cmd.OutOrStdout(), pkgs)
			}
			return writePackages(cmd.OutOrStdout(), pkgs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show packages with this status")
	return cmd
}

func newSummaryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show package counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := o.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			buckets := snap.Summary()
			if o.asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"total": snap.Len(), "statuses": buckets})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATUS\tSLUG\tCOUNT")
			for _, b := range buckets {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", b.StatusName, b.Slug, b.Quantity)
			}
			fmt.Fprintf(tw, "TOTAL\t\t%d\n", snap.Len())
			return tw.Flush()
		},
	}
}

func newAddCmd(o *rootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <number>",
		Short: "Register a tracking number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client.AddPackage(cmd.Context(), args[0], title); err != nil {
				return errors.Wrap(err, "add package")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Friendly name for the package")
	return cmd
}

func newArchiveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <number>",
		Short: "Stop tracking a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client.ArchivePackage(cmd.Context(), args[0]); err != nil {
				return errors.Wrap(err, "archive package")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %s\n", args[0])
			return nil
		},
	}
}

func filterByStatus(pkgs []*models.Package, slug string) []*models.Package {
	out := make([]*models.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if p.StatusSlug() == slug {
			out = append(out, p)
		}
	}
	return out
}

func writePackages(w io.Writer, pkgs []*models.Package) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tTITLE\tUPDATED\tINFO")
	for _, p := range pkgs {
		updated := "-"
		if p.Timestamp != nil {
			updated = p.Timestamp.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.TrackingNumber, p.Status, orDash(p.FriendlyName), updated, orDash(p.InfoText))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
