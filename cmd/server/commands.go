package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
	"github.com/Akash-Sakala/AgriQNet/internal/region"
	"github.com/Akash-Sakala/AgriQNet/internal/server"
	"github.com/Akash-Sakala/AgriQNet/internal/zones"
)

var zonesCmd = &cobra.Command{
	Use:   "zones <district>",
	Short: "Print the red, orange and yellow zones around a district",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cfg.Region.TablePath)
		if err != nil {
			return err
		}
		district := strings.Join(args, " ")
		if !g.Has(district) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not in the region table\n", district)
		}
		printZones(cmd.OutOrStdout(), zones.Compute(g, district))
		return nil
	},
}

func printZones(w io.Writer, z zones.Zones) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range zones.Tiers {
		fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(t.String()), strings.Join(z.Districts(t), ", "))
	}
	tw.Flush()
}

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Print the district adjacency table",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cfg.Region.TablePath)
		if err != nil {
			return err
		}
		printDistricts(cmd.OutOrStdout(), g)
		return nil
	},
}

func printDistricts(w io.Writer, g *region.Graph) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range g.Districts() {
		fmt.Fprintf(tw, "%s\t%s\n", d, strings.Join(g.Neighbors(d), ", "))
	}
	tw.Flush()
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <district> <phone>",
	Short: "Register a phone number for a district's alerts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.dir.Subscribe(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscribed to %s\n", args[0])
			return nil
		})
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <district> <pest>",
	Short: "Alert subscribers around an outbreak and print the summary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			out, err := a.bc.Broadcast(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), out)
		})
	},
}

func printSummary(w io.Writer, out broadcast.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		broadcast.Summary
		ID string `json:"id"`
	}{out.Summary(), out.ID})
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue an operator JWT for the protected API routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := server.NewOperatorToken(cfg.Auth.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
