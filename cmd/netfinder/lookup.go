package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netfinder/internal/model"
	"netfinder/internal/service"
)

type lookuper interface {
	Lookup(ctx context.Context, ip string) (*model.LookupResult, error)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup IP...",
	Short: "Print the network that owns each address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		networkService, err := newNetworkService(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer networkService.Close()

		invalid, err := printLookups(ctx, cmd.OutOrStdout(), networkService, args, logger)
		if err != nil {
			return err
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d addresses were invalid", invalid, len(args))
		}
		return nil
	},
}

// printLookups writes one formatted block per valid address, separated by a
// blank line, and returns how many addresses were skipped as invalid.
func printLookups(ctx context.Context, out io.Writer, finder lookuper, ips []string, logger *zap.Logger) (int, error) {
	invalid := 0
	printed := false
	for _, ip := range ips {
		result, err := finder.Lookup(ctx, ip)
		if errors.Is(err, model.ErrInvalidAddress) {
			invalid++
			logger.Warn("Skipping invalid address", zap.String("ip", ip), zap.Error(err))
			continue
		}
		if err != nil {
			return invalid, err
		}

		if printed {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, service.Format(result))
		printed = true
	}
	return invalid, nil
}
