package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent order imbalance samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ListRecentImbalance(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMarket\tBid Value\tAsk Value")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.Market,
			sample.BidValue.StringFixed(2),
			sample.AskValue.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}
