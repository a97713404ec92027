package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Markets prints every sampled market with its stored range and row count.
func (a *App) Markets(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	infos, err := store.ListSampledMarkets(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(os.Stdout, "no markets sampled yet")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Market\tFirst (UTC)\tLast (UTC)\tRows")

	for _, info := range infos {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\n",
			info.Market,
			info.FirstBucket.UTC().Format(time.RFC3339),
			info.LastBucket.UTC().Format(time.RFC3339),
			info.Rows,
		)
	}

	writer.Flush()
	return nil
}
