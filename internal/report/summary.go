package report

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/framewatch/internal/present"
)

// Summary renders an end-of-run digest of the engine counters. Counts use
// grouped digits; multi-million-event runs are the norm.
func Summary(w io.Writer, stats present.Stats) error {
	p := message.NewPrinter(language.English)

	_, err := p.Fprintf(w,
		"events processed:    %d\n"+
			"presents completed:  %d\n"+
			"presents lost:       %d\n"+
			"  by eviction:       %d\n"+
			"  by replacement:    %d\n"+
			"orphan events:       %d\n"+
			"classification errors: %d\n"+
			"invariant breaches:  %d\n",
		stats.EventsProcessed,
		stats.PresentsCompleted,
		stats.PresentsLost,
		stats.LostByEviction,
		stats.LostByReplacement,
		stats.OrphanEvents,
		stats.ClassificationErrors,
		stats.InvariantBreaches,
	)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
