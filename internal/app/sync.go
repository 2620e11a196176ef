package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// Sync drains the offline queue into the canonical store once and reports
// what happened.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; nothing to sync against")
	}

	if opts.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Wait)
		defer cancel()
	}

	sess, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.syncer.SyncPending(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Submitted\tFailed\tRemaining")
	fmt.Fprintf(writer, "%d\t%d\t%d\n", res.Submitted, res.Failed, res.Remaining)
	return writer.Flush()
}
