package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/miradorstack/fleetwatch/internal/engine"
)

const ruleWidth = 40

// PrintSummary writes the human-readable console summary of a run. savedPath is
// reported when the artifact was written.
func PrintSummary(w io.Writer, res engine.Result, savedPath string) error {
	heavy := strings.Repeat("=", ruleWidth)
	light := strings.Repeat("-", ruleWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", heavy)
	fmt.Fprintf(&b, "       Detection summary\n")
	fmt.Fprintf(&b, "%s\n", heavy)
	fmt.Fprintf(&b, " 1. Algorithm A-1 (overcurrent) : %5d\n", res.Counts.Overcurrent)
	fmt.Fprintf(&b, " 2. Algorithm A-2 (overload)    : %5d\n", res.Counts.Overload)
	fmt.Fprintf(&b, " 3. Algorithm B   (anomaly)     : %5d\n", res.Counts.Anomaly)
	fmt.Fprintf(&b, "%s\n", light)
	fmt.Fprintf(&b, "    Total events                : %5d\n", res.Counts.Total())
	fmt.Fprintf(&b, "%s\n", heavy)

	switch {
	case res.Delivered && savedPath != "":
		fmt.Fprintf(&b, "\n>>> Detailed events saved to '%s'.\n", savedPath)
	case res.Counts.Total() == 0:
		fmt.Fprintf(&b, "\n>>> No events matched any detector.\n")
	}
	if len(res.Fallbacks) > 0 {
		fmt.Fprintf(&b, ">>> In-memory fallback used for: %s\n", strings.Join(res.Fallbacks, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
