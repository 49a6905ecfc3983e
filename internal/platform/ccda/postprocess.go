package ccda

import (
	"sort"
	"strings"
)

// PostProcess finalizes a freshly extracted document: it normalizes the
// patient name, infers diagnoses from medications when none were found,
// and sorts and deduplicates diagnoses and medications by name. Running it
// again on its own output changes nothing.
func PostProcess(doc *Document) {
	if doc.Patient.Name != nil {
		name := strings.Join(strings.Fields(*doc.Patient.Name), " ")
		if name == "" {
			doc.Patient.Name = nil
		} else {
			doc.Patient.Name = &name
		}
	}

	if len(doc.Diagnoses) == 0 {
		inferDiagnosesFromMedications(doc)
	}

	sort.SliceStable(doc.Diagnoses, func(i, j int) bool {
		return doc.Diagnoses[i].Name < doc.Diagnoses[j].Name
	})
	doc.Diagnoses = dedupByName(doc.Diagnoses, func(d Diagnosis) string { return d.Name })

	sort.SliceStable(doc.Medications, func(i, j int) bool {
		return doc.Medications[i].Name < doc.Medications[j].Name
	})
	doc.Medications = dedupByName(doc.Medications, func(m Medication) string { return m.Name })
}

// dedupByName keeps the first entry of every case-insensitive name in an
// already sorted slice.
func dedupByName[T any](items []T, name func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := foldKey(name(it))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
