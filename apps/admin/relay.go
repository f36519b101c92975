package main

import (
	"context"
	"fmt"
)

// relay makes one delivery pass over the due notifications.
func (cli *commandLine) relay(ctx context.Context) error {
	sent, err := cli.outbox.RelayOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "delivered %d notifications\n", sent)
	return nil
}
