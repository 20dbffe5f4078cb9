package sink

import (
	"fmt"
	"strings"
)

// Metrics counts reporting outcomes.  Each worker accumulates its own copy;
// copies are merged at batch boundaries.
type Metrics struct {
	NRead     int // reads (or pairs) finished
	NPaired   int // of which paired
	NUnpaired int // of which unpaired

	NConcord0   int // pairs with no concordant alignment
	NConcordUni int // pairs aligned concordantly within the ceiling
	NConcordRep int // pairs aligned concordantly above the ceiling
	NDiscord    int // pairs reported discordant

	// Mates of pairs with no concordant or discordant alignment.
	NUnpPair0None int
	NUnpPair0Uni  int
	NUnpPair0Rep  int
	// Mates of repetitively aligned pairs.
	NUnpPairRepNone int
	NUnpPairRepUni  int
	NUnpPairRepRep  int
	// Unpaired reads.
	NUnpNone int
	NUnpUni  int
	NUnpRep  int
}

// Merge adds the field values of the two Metrics and returns the sum.
func (m Metrics) Merge(o Metrics) Metrics {
	m.NRead += o.NRead
	m.NPaired += o.NPaired
	m.NUnpaired += o.NUnpaired
	m.NConcord0 += o.NConcord0
	m.NConcordUni += o.NConcordUni
	m.NConcordRep += o.NConcordRep
	m.NDiscord += o.NDiscord
	m.NUnpPair0None += o.NUnpPair0None
	m.NUnpPair0Uni += o.NUnpPair0Uni
	m.NUnpPair0Rep += o.NUnpPair0Rep
	m.NUnpPairRepNone += o.NUnpPairRepNone
	m.NUnpPairRepUni += o.NUnpPairRepUni
	m.NUnpPairRepRep += o.NUnpPairRepRep
	m.NUnpNone += o.NUnpNone
	m.NUnpUni += o.NUnpUni
	m.NUnpRep += o.NUnpRep
	return m
}

func pct(num, denom int) string {
	if denom == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100.0*float64(num)/float64(denom))
}

// Summary renders the human-readable alignment summary: how many reads
// aligned, exceeded the ceiling, or failed to align, and the overall
// alignment rate.
func (m Metrics) Summary(discord, mixed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d reads; of these:\n", m.NRead)
	if m.NPaired > 0 {
		fmt.Fprintf(&b, "  %d (%s) were paired; of these:\n", m.NPaired, pct(m.NPaired, m.NRead))
		fmt.Fprintf(&b, "    %d (%s) aligned concordantly 0 times\n", m.NConcord0, pct(m.NConcord0, m.NPaired))
		fmt.Fprintf(&b, "    %d (%s) aligned concordantly at least once\n", m.NConcordUni, pct(m.NConcordUni, m.NPaired))
		fmt.Fprintf(&b, "    %d (%s) aligned concordantly over the ceiling\n", m.NConcordRep, pct(m.NConcordRep, m.NPaired))
		if discord {
			fmt.Fprintf(&b, "    %d (%s) aligned discordantly 1 time\n", m.NDiscord, pct(m.NDiscord, m.NConcord0))
		}
		if mixed {
			mates := (m.NConcord0 - m.NDiscord) * 2
			fmt.Fprintf(&b, "    %d mates make up the unaligned pairs; of these:\n", mates)
			fmt.Fprintf(&b, "      %d (%s) aligned 0 times\n", m.NUnpPair0None, pct(m.NUnpPair0None, mates))
			fmt.Fprintf(&b, "      %d (%s) aligned at least once\n", m.NUnpPair0Uni, pct(m.NUnpPair0Uni, mates))
			fmt.Fprintf(&b, "      %d (%s) aligned over the ceiling\n", m.NUnpPair0Rep, pct(m.NUnpPair0Rep, mates))
		}
	}
	if m.NUnpaired > 0 {
		fmt.Fprintf(&b, "  %d (%s) were unpaired; of these:\n", m.NUnpaired, pct(m.NUnpaired, m.NRead))
		fmt.Fprintf(&b, "    %d (%s) aligned 0 times\n", m.NUnpNone, pct(m.NUnpNone, m.NUnpaired))
		fmt.Fprintf(&b, "    %d (%s) aligned at least once\n", m.NUnpUni, pct(m.NUnpUni, m.NUnpaired))
		fmt.Fprintf(&b, "    %d (%s) aligned over the ceiling\n", m.NUnpRep, pct(m.NUnpRep, m.NUnpaired))
	}
	cand := m.NUnpaired + m.NPaired*2
	al := (m.NConcordUni+m.NConcordRep)*2 + m.NDiscord*2 +
		m.NUnpPair0Uni + m.NUnpPair0Rep + m.NUnpUni + m.NUnpRep
	fmt.Fprintf(&b, "%s overall alignment rate", pct(al, cand))
	return b.String()
}
