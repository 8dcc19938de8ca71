package merge

import (
	"sort"

	"renote/internal/notes"
	"renote/internal/session"
)

// AgreementWindow is the onset tolerance in seconds for the inter-source
// agreement report. It is fixed rather than configured so reports stay
// comparable across sessions.
const AgreementWindow = 0.05

// BuildAgreement computes the pairwise inter-source report: for each source
// pair, the fraction of notes matched at equal pitch within the agreement
// window, normalized by the larger stream. Per-source singleton statistics
// come from the merged consensus.
func BuildAgreement(streams []session.Stream, merged []notes.NoteEvent) *session.AgreementReport {
	if len(streams) == 0 {
		return nil
	}

	ordered := make([]session.Stream, len(streams))
	copy(ordered, streams)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Model < ordered[j].Model })

	report := &session.AgreementReport{}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			matched := countMatches(ordered[i].Notes, ordered[j].Notes)
			larger := len(ordered[i].Notes)
			if len(ordered[j].Notes) > larger {
				larger = len(ordered[j].Notes)
			}
			agreement := 0.0
			if larger > 0 {
				agreement = float64(matched) / float64(larger)
			}
			report.Pairs = append(report.Pairs, session.AgreementPair{
				SourceA:   ordered[i].Model,
				SourceB:   ordered[j].Model,
				Matched:   matched,
				Agreement: agreement,
			})
		}
	}

	singletons := make(map[string]int)
	for _, n := range merged {
		if len(n.Provenance) == 1 {
			singletons[n.Provenance[0]]++
		}
	}
	for _, stream := range ordered {
		count := singletons[stream.Model]
		rate := 0.0
		if len(stream.Notes) > 0 {
			rate = float64(count) / float64(len(stream.Notes))
		}
		report.Sources = append(report.Sources, session.SourceAgreement{
			Model:         stream.Model,
			Notes:         len(stream.Notes),
			Singletons:    count,
			SingletonRate: rate,
		})
	}
	return report
}

// countMatches counts notes in a that have at least one equal-pitch note in
// b within the agreement window. Both inputs are onset-sorted.
func countMatches(a, b []notes.NoteEvent) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	for _, n := range a {
		lo := sort.Search(len(b), func(k int) bool {
			return b[k].Onset >= n.Onset-AgreementWindow
		})
		for k := lo; k < len(b) && b[k].Onset <= n.Onset+AgreementWindow; k++ {
			if b[k].Pitch == n.Pitch {
				matched++
				break
			}
		}
	}
	return matched
}
