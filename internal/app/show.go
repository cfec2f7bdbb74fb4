package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"text/tabwriter"
)

// Show prints the latest snapshot, one currency per line.
func (a *App) Show(_ context.Context) error {
	latest, err := a.newFileStore(a.Logger).ReadLatest()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(a.Out, "no dataset found; run build first")
		return nil
	}
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		fmt.Fprintln(a.Out, "latest snapshot is empty")
		return nil
	}

	codes := make([]string, 0, len(latest))
	for code := range latest {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Currency\tDate\tRate")
	for _, code := range codes {
		point := latest[code]
		fmt.Fprintf(writer, "%s\t%s\t%s\n", code, point.Date, point.Rate.String())
	}
	return writer.Flush()
}
