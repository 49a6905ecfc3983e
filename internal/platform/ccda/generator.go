package ccda

import (
	"encoding/xml"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Problem is a coded problem-list entry.
type Problem struct {
	Code        string
	DisplayName string
}

// SampleRecord holds everything needed to write one synthetic CDA document.
type SampleRecord struct {
	DocumentID    string // generated when empty
	PatientID     string
	Given         string
	Family        string
	Gender        string // administrative gender code as written, e.g. F, M, UN
	BirthDate     time.Time
	Author        string
	Title         string
	EffectiveTime time.Time
	Problems      []Problem
	Medications   []string
	Notes         string
}

// Generator writes CDA documents for synthetic corpora. It is safe
// for concurrent use because it holds only immutable configuration.
type Generator struct {
	orgName string // Custodian organization name
	orgOID  string // Custodian OID
}

// NewGenerator creates a new CDA generator.
func NewGenerator(orgName, orgOID string) *Generator {
	return &Generator{
		orgName: orgName,
		orgOID:  orgOID,
	}
}

// Generate produces a complete CDA XML document for rec.
func (g *Generator) Generate(rec SampleRecord) ([]byte, error) {
	if rec.PatientID == "" {
		return nil, fmt.Errorf("ccda: patient id is required")
	}

	doc := g.buildDocument(rec)

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ccda: failed to marshal XML: %w", err)
	}

	header := []byte(xml.Header)
	result := make([]byte, len(header)+len(output))
	copy(result, header)
	copy(result[len(header):], output)
	return result, nil
}

func (g *Generator) buildDocument(rec SampleRecord) *ClinicalDocument {
	effective := rec.EffectiveTime
	if effective.IsZero() {
		effective = time.Now().UTC()
	}
	docID := rec.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}

	doc := &ClinicalDocument{
		TypeID: &InstanceID{
			Root:      "2.16.840.1.113883.1.3",
			Extension: "POCD_HD000040",
		},
		TemplateIDs: []InstanceID{
			{Root: OIDUSRealmHeader},
			{Root: OIDCCDDocument},
		},
		ID: &InstanceID{Root: docID},
		Code: &Code{
			DisplayName:    "Summarization of Episode Note",
			Code:           "34133-9",
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
		},
		Title:         rec.Title,
		EffectiveTime: &TimeValue{Value: formatHL7Time(effective)},
		RecordTarget:  g.buildRecordTarget(rec),
		Custodian:     g.buildCustodian(),
	}
	if rec.Author != "" {
		doc.Author = g.buildAuthor(rec.Author, effective)
	}

	var components []SectionComponent
	if len(rec.Problems) > 0 {
		components = append(components, SectionComponent{Section: buildProblemsSection(docID, rec.Problems)})
	}
	if len(rec.Medications) > 0 {
		components = append(components, SectionComponent{Section: buildMedicationsSection(docID, rec.Medications)})
	}
	if rec.Notes != "" {
		sec := &Section{
			Code:  &Code{Code: "10164-2", CodeSystem: OIDLOINC, CodeSystemName: "LOINC"},
			Title: "Notas clínicas",
			Text:  rec.Notes,
		}
		components = append(components, SectionComponent{Section: sec})
	}
	if len(components) > 0 {
		doc.Component = &Component{StructuredBody: &StructuredBody{Components: components}}
	}

	return doc
}

func (g *Generator) buildRecordTarget(rec SampleRecord) *RecordTarget {
	pat := &PatientElem{}
	if rec.Given != "" || rec.Family != "" {
		pat.Name = &Name{Given: rec.Given, Family: rec.Family}
	}
	if rec.Gender != "" {
		pat.AdministrativeGenderCode = &Code{Code: rec.Gender, CodeSystem: OIDAdminGender}
	}
	if !rec.BirthDate.IsZero() {
		pat.BirthTime = &TimeValue{Value: rec.BirthDate.Format("20060102")}
	}

	return &RecordTarget{PatientRole: &PatientRole{
		IDs:     []InstanceID{{Root: g.orgOID, Extension: rec.PatientID}},
		Patient: pat,
	}}
}

func (g *Generator) buildAuthor(name string, at time.Time) *Author {
	return &Author{
		Time: &TimeValue{Value: formatHL7Time(at)},
		AssignedAuthor: &AssignedAuthor{
			ID:             &InstanceID{Root: g.orgOID},
			AssignedPerson: &AssignedPerson{Name: name},
		},
	}
}

func (g *Generator) buildCustodian() *Custodian {
	return &Custodian{
		AssignedCustodian: &AssignedCustodian{
			RepresentedCustodianOrganization: &CustodianOrganization{
				IDs:   []InstanceID{{Root: g.orgOID}},
				Names: []string{g.orgName},
			},
		},
	}
}

// Entry ids are scoped to the document id so the same record always
// serializes to the same bytes.
func buildMedicationsSection(docID string, meds []string) *Section {
	section := newSection(OIDMedicationsSection, LOINCMedications, "Medicamentos")
	for i, name := range meds {
		section.Entries = append(section.Entries, Entry{
			TypeCode: "DRIV",
			SubstanceAdministration: &SubstanceAdministration{
				ClassCode:   "SBADM",
				MoodCode:    "EVN",
				TemplateIDs: []InstanceID{{Root: OIDMedicationEntry}},
				IDs:         []InstanceID{{Root: docID, Extension: fmt.Sprintf("med-%d", i+1)}},
				StatusCode:  &Code{Code: "active"},
				Consumable: &Consumable{
					ManufacturedProduct: &ManufacturedProduct{
						ManufacturedMaterial: &ManufacturedMaterial{Name: name},
					},
				},
			},
		})
	}
	return section
}

func buildProblemsSection(docID string, problems []Problem) *Section {
	section := newSection(OIDProblemsSection, LOINCProblems, "Problemas")
	for i, p := range problems {
		section.Entries = append(section.Entries, Entry{
			TypeCode: "DRIV",
			Act: &Act{
				ClassCode:   "ACT",
				MoodCode:    "EVN",
				TemplateIDs: []InstanceID{{Root: OIDProblemEntry}},
				IDs:         []InstanceID{{Root: docID, Extension: fmt.Sprintf("problem-%d", i+1)}},
				StatusCode:  &Code{Code: "active"},
				EntryRelationships: []EntryRelationship{{
					TypeCode: "SUBJ",
					Observation: &ObservationEntry{
						ClassCode: "OBS",
						MoodCode:  "EVN",
						Code: &Code{
							DisplayName: p.DisplayName,
							Code:        p.Code,
							CodeSystem:  OIDSNOMED,
						},
					},
				}},
			},
		})
	}
	return section
}

func newSection(templateID, loincCode, title string) *Section {
	return &Section{
		TemplateIDs: []InstanceID{{Root: templateID}},
		Code:        &Code{Code: loincCode, CodeSystem: OIDLOINC, CodeSystemName: "LOINC"},
		Title:       title,
	}
}

func formatHL7Time(t time.Time) string {
	return t.Format("20060102150405")
}

// Vocabularies for RandomRecord.
var (
	sampleGiven   = []string{"María", "José", "Lucía", "Carlos", "Elena", "Miguel", "Sofía", "Javier"}
	sampleFamily  = []string{"García", "Fernández", "López", "Martínez", "Sánchez", "Romero"}
	sampleGenders = []string{"F", "M", "F", "M", "UN"}
	sampleAuthors = []string{"Dra. Ana Torres", "Dr. Luis Pérez", "Dra. Carmen Ruiz", "Dr. Jorge Medina"}
	sampleTitles  = []string{
		"Paciente diabético hipertenso",
		"Control anticoagulación",
		"Seguimiento de hipercolesterolemia",
		"Paciente con múltiples condiciones",
		"Crisis de asma",
		"Consulta de control",
	}
	sampleProblems = []Problem{
		{Code: "44054006", DisplayName: "Diabetes mellitus tipo 2"},
		{Code: "38341003", DisplayName: "Hipertensión arterial"},
		{Code: "195967001", DisplayName: "Asma bronquial"},
		{Code: "13644009", DisplayName: "Hipercolesterolemia"},
		{Code: "35489007", DisplayName: "Depresión"},
		{Code: "69896004", DisplayName: "Artritis reumatoide"},
	}
	sampleMedications = []string{
		"Metformina", "Enalapril", "Atorvastatina", "Salbutamol",
		"Budesonida", "Warfarina", "Omeprazol", "Losartan",
	}
	sampleNotes = []string{
		"Paciente estable, sin cambios en el tratamiento.",
		"Cuadro agudo de bronchitis, se indica amoxicillin 500 mg.",
		"Diabetes controlada con metformin.",
		"Hipertension crónico compensado.",
		"Refiere anxiety leve, se sugiere seguimiento.",
		"",
	}
)

// RandomRecord draws a record from fixed clinical vocabularies. The same
// rng state always yields the same record.
func (g *Generator) RandomRecord(rng *rand.Rand) SampleRecord {
	docID, _ := uuid.NewRandomFromReader(rng)
	birth := time.Date(1930+rng.Intn(86), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
	effective := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).AddDate(0, 0, rng.Intn(365))

	rec := SampleRecord{
		DocumentID:    docID.String(),
		PatientID:     fmt.Sprintf("P%06d", rng.Intn(1000000)),
		Given:         pick(rng, sampleGiven),
		Family:        pick(rng, sampleFamily),
		Gender:        pick(rng, sampleGenders),
		BirthDate:     birth,
		Author:        pick(rng, sampleAuthors),
		Title:         pick(rng, sampleTitles),
		EffectiveTime: effective,
		Notes:         pick(rng, sampleNotes),
	}
	for _, i := range rng.Perm(len(sampleProblems))[:rng.Intn(3)] {
		rec.Problems = append(rec.Problems, sampleProblems[i])
	}
	for _, i := range rng.Perm(len(sampleMedications))[:rng.Intn(4)] {
		rec.Medications = append(rec.Medications, sampleMedications[i])
	}
	return rec
}

// FileName returns a file name for rec that is stable across runs.
func (rec SampleRecord) FileName() string {
	return strings.ToLower(rec.PatientID) + ".xml"
}

func pick(rng *rand.Rand, xs []string) string {
	return xs[rng.Intn(len(xs))]
}
