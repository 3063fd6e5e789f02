package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/formatter"
)

// openInput opens args[0], or standard input when it is absent or "-".
func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	fh, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return fh, func() { _ = fh.Close() }, nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	in, closeIn, err := openInput(cmd, args)
	if err != nil {
		return nil, err
	}
	defer closeIn()
	return io.ReadAll(in)
}

func prepareRaw(ctx context.Context, f *formatter.Formatter, data []byte, fallback string) (*formatter.Prepared, error) {
	pairs, err := canon.Decode(data)
	if err != nil {
		return nil, err
	}
	return f.Prepare(ctx, pairs, fallback)
}
