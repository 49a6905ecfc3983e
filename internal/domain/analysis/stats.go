package analysis

import (
	"sort"

	"github.com/ehr/cdastats/internal/platform/ccda"
)

// TopN is the length of the ranked diagnosis and medication lists.
const TopN = 5

// ComputeStatistics reduces docs in a single pass. It does not set
// ProcessingTimeMS. Documents without a gender count as Unknown; the
// average age only covers documents with a known age and is 0 when there
// are none. Ranked lists are ordered by descending count, ties broken by
// ascending name.
func ComputeStatistics(docs []*ccda.Document) Statistics {
	genders := make(map[string]int)
	diagnoses := make(map[string]int)
	medications := make(map[string]int)
	var ageSum, ageCount int

	for _, doc := range docs {
		gender := ccda.GenderUnknown
		if doc.Patient.Gender != nil {
			gender = *doc.Patient.Gender
		}
		genders[gender]++

		if doc.Patient.Age != nil {
			ageSum += *doc.Patient.Age
			ageCount++
		}

		for _, dx := range doc.Diagnoses {
			diagnoses[dx.Name]++
		}
		for _, med := range doc.Medications {
			medications[med.Name]++
		}
	}

	stats := Statistics{
		TotalDocuments:     len(docs),
		TotalPatients:      len(docs),
		GenderDistribution: genders,
		TopDiagnoses:       rank(diagnoses, TopN),
		TopMedications:     rank(medications, TopN),
	}
	if ageCount > 0 {
		stats.AverageAge = float64(ageSum) / float64(ageCount)
	}
	return stats
}

func rank(counts map[string]int, n int) []RankedCount {
	ranked := make([]RankedCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, RankedCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
