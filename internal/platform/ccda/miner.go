package ccda

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// medicationPatterns are applied in order to lower-cased free text.
var medicationPatterns = []*regexp.Regexp{
	// drug-class suffixes
	regexp.MustCompile(`(?i)\b\w+(?:cillin|mycin|prazole|statin|tide|pine|zole|pril|sartan)\b`),
	// a word followed by a dosage unit
	regexp.MustCompile(`(?i)\b\w+\s*(?:mg|tablet|capsule|injection)\b`),
	// common drug names
	regexp.MustCompile(`(?i)\baspirin\b|\bibuprofen\b|\bparacetamol\b|\bmetformin\b|\benalapril\b|\batorvastatin\b|\bsalbutamol\b|\bbudesonida\b|\bwarfarin\b`),
}

// minMinedMedicationLen is exclusive: mined matches must be longer.
const minMinedMedicationLen = 3

var diagnosisKeywords = []string{
	"diabetes", "diabético", "hipertension", "hipertenso", "asma", "pneumonia", "infection",
	"fracture", "cancer", "depression", "anxiety", "arthritis", "hipercolesterolemia",
	"bronchitis", "gastritis", "dermatitis", "nephritis", "controlada", "crónico",
	"agudo", "estable", "compensado",
}

type keywordMapping struct {
	keyword   string
	diagnosis string
}

var titleMappings = []keywordMapping{
	{"hipertenso", "Hipertensión"},
	{"diabético", "Diabetes"},
	{"hipercolesterolemia", "Hipercolesterolemia"},
	{"asma", "Asma"},
	{"múltiples condiciones", "Múltiples patologías"},
	{"anticoagulación", "Trastorno de coagulación"},
	{"control anticoagulación", "Anticoagulación"},
}

var medicationDiagnoses = []keywordMapping{
	{"metformina", "Diabetes mellitus tipo 2"},
	{"metformin", "Diabetes mellitus tipo 2"},
	{"enalapril", "Hipertensión arterial"},
	{"atorvastatina", "Hipercolesterolemia"},
	{"atorvastatin", "Hipercolesterolemia"},
	{"salbutamol", "Asma bronquial"},
	{"budesonida", "Asma bronquial"},
	{"budesonide", "Asma bronquial"},
	{"warfarina", "Trastorno de coagulación"},
	{"warfarin", "Trastorno de coagulación"},
}

// canonicalMedications maps lower-cased structured medication names to
// their display form.
var canonicalMedications = map[string]string{
	"metformina":    "Metformina",
	"metformin":     "Metformina",
	"enalapril":     "Enalapril",
	"atorvastatina": "Atorvastatina",
	"atorvastatin":  "Atorvastatina",
	"salbutamol":    "Salbutamol",
	"budesonida":    "Budesonida",
	"budesonide":    "Budesonida",
	"warfarina":     "Warfarina",
	"warfarin":      "Warfarina",
}

// foldKey lower-cases s with Unicode rules. A Caser is stateful, so one is
// built per call.
func foldKey(s string) string {
	return cases.Lower(language.Und).String(s)
}

// NormalizeGender maps an administrative gender code to M, F or Unknown.
func NormalizeGender(code string) string {
	switch strings.ToUpper(code) {
	case "M", "MALE":
		return GenderMale
	case "F", "FEMALE":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// DeriveAge computes an age from an HL7 date relative to referenceYear. The
// date must hold at least eight characters whose first four parse as a
// year; ages outside [0, 150] are rejected.
func DeriveAge(hl7Date string, referenceYear int) (int, bool) {
	if len(hl7Date) < 8 {
		return 0, false
	}
	year, err := strconv.Atoi(hl7Date[:4])
	if err != nil {
		return 0, false
	}
	age := referenceYear - year
	if age < 0 || age > 150 {
		return 0, false
	}
	return age, true
}

// NormalizeMedicationName returns the canonical spelling of well-known
// medications and the trimmed input otherwise.
func NormalizeMedicationName(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := canonicalMedications[foldKey(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// mineText runs the medication patterns, the title table and the
// diagnosis keyword table over text.
func mineText(doc *Document, text string) {
	lower := foldKey(text)

	mineTitle(doc, text)

	for _, re := range medicationPatterns {
		for _, match := range re.FindAllString(lower, -1) {
			if len(match) > minMinedMedicationLen {
				doc.addMedication(match, ProvenanceTextExtracted)
			}
		}
	}

	for _, kw := range diagnosisKeywords {
		if strings.Contains(lower, kw) {
			doc.addInferredDiagnosis(kw, ProvenanceTextExtracted)
		}
	}
}

// mineTitle maps well-known title phrases to diagnoses.
func mineTitle(doc *Document, text string) {
	lower := foldKey(text)
	for _, m := range titleMappings {
		if strings.Contains(lower, m.keyword) {
			doc.addInferredDiagnosis(m.diagnosis, ProvenanceTitleInferred)
		}
	}
}

// inferDiagnosesFromMedications adds the probable indication of every
// recognized medication.
func inferDiagnosesFromMedications(doc *Document) {
	for _, med := range doc.Medications {
		lower := foldKey(med.Name)
		for _, m := range medicationDiagnoses {
			if strings.Contains(lower, m.keyword) {
				doc.addInferredDiagnosis(m.diagnosis, ProvenanceMedicationInferred)
			}
		}
	}
}
