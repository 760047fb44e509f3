package sim

import (
	"fmt"
	"os"
	"strings"

	"github.com/LaureanoOlocco/concurrency-lab/core/petri"
)

const reportRule = "--------------------------"

// Report renders the final statistics: the fired sequence, the
// per-transition counters and the completed transition invariants.
func Report(net *petri.Net) string {
	var b strings.Builder

	b.WriteString(net.Sequence())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s Transiciones disparadas %s\n", reportRule, reportRule)
	for t, k := range net.Fires() {
		fmt.Fprintf(&b, "Transicion %d disparada: %d veces.\n", t, k)
	}

	fmt.Fprintf(&b, "\n%s Invariantes completados %s\n", reportRule, reportRule)
	counts := net.InvariantCounts()
	total := 0
	for j, c := range counts {
		fmt.Fprintf(&b, "Invariante %d: %v completado: %d veces\n", j+1, net.Topology().TransitionInvariants[j], c)
		total += c
	}
	fmt.Fprintf(&b, "Total de invariantes completados: %d\n", total)

	return b.String()
}

// WriteReport writes the final statistics to path.
func WriteReport(path string, net *petri.Net) error {
	if err := os.WriteFile(path, []byte(Report(net)), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
