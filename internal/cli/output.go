package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/internal/storage"
	"github.com/dustin/go-humanize"
)

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeSweepReport(w io.Writer, report services.SweepReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Sessions removed:\t%d\n", report.Sessions)
	fmt.Fprintf(tw, "Pending logins removed:\t%d\n", report.PendingLogins)
	fmt.Fprintf(tw, "Tokens removed:\t%d\n", report.Tokens)
	tw.Flush()
}

func writeExports(w io.Writer, objects []storage.ArchivedObject) {
	if len(objects) == 0 {
		fmt.Fprintln(w, "No exports found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, obj := range objects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", obj.Name, humanize.Bytes(uint64(obj.Size)), obj.LastModified.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}
