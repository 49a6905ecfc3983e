package ccda

// Provenance labels attached to extracted diagnoses and medications.
const (
	ProvenanceStructured         = "structured"
	ProvenanceTextExtracted      = "text_extracted"
	ProvenanceTitleInferred      = "title_inferred"
	ProvenanceMedicationInferred = "medication_inferred"
)

// Normalized gender values.
const (
	GenderMale    = "M"
	GenderFemale  = "F"
	GenderUnknown = "Unknown"
)

// Patient holds the demographics extracted from one document.
type Patient struct {
	ID        *string `json:"id,omitempty"`
	Name      *string `json:"name,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

// Diagnosis is a structured or inferred problem. CodeSystem carries the
// provenance label for inferred diagnoses and is nil for structured ones.
type Diagnosis struct {
	Code       *string `json:"code,omitempty"`
	Name       string  `json:"name"`
	CodeSystem *string `json:"code_system,omitempty"`
}

// Medication is a structured or text-mined medication mention.
type Medication struct {
	Name           string `json:"name"`
	MedicationType string `json:"medication_type"`
}

// Document is the result of extracting one clinical XML file.
type Document struct {
	FileName     string       `json:"file_name"`
	Patient      Patient      `json:"patient"`
	Diagnoses    []Diagnosis  `json:"diagnoses"`
	Medications  []Medication `json:"medications"`
	DocumentDate *string      `json:"document_date,omitempty"`
	Author       *string      `json:"author,omitempty"`
}

func newDocument(fileName string) *Document {
	return &Document{
		FileName:    fileName,
		Diagnoses:   []Diagnosis{},
		Medications: []Medication{},
	}
}

// hasDiagnosis reports whether a diagnosis with the same case-insensitive
// name is already recorded.
func (d *Document) hasDiagnosis(name string) bool {
	key := foldKey(name)
	for _, dx := range d.Diagnoses {
		if foldKey(dx.Name) == key {
			return true
		}
	}
	return false
}

func (d *Document) hasMedication(name string) bool {
	key := foldKey(name)
	for _, m := range d.Medications {
		if foldKey(m.Name) == key {
			return true
		}
	}
	return false
}

func (d *Document) addInferredDiagnosis(name, provenance string) {
	if d.hasDiagnosis(name) {
		return
	}
	d.Diagnoses = append(d.Diagnoses, Diagnosis{
		Name:       name,
		CodeSystem: strPtr(provenance),
	})
}

func (d *Document) addMedication(name, medType string) {
	if d.hasMedication(name) {
		return
	}
	d.Medications = append(d.Medications, Medication{Name: name, MedicationType: medType})
}

// Clone returns a deep copy so callers can hand documents out without
// exposing the stored instance.
func (d *Document) Clone() *Document {
	out := *d
	out.Patient = Patient{
		ID:        clonePtr(d.Patient.ID),
		Name:      clonePtr(d.Patient.Name),
		Gender:    clonePtr(d.Patient.Gender),
		BirthDate: clonePtr(d.Patient.BirthDate),
		Age:       clonePtr(d.Patient.Age),
	}
	out.Diagnoses = make([]Diagnosis, len(d.Diagnoses))
	for i, dx := range d.Diagnoses {
		out.Diagnoses[i] = Diagnosis{
			Code:       clonePtr(dx.Code),
			Name:       dx.Name,
			CodeSystem: clonePtr(dx.CodeSystem),
		}
	}
	out.Medications = append([]Medication{}, d.Medications...)
	out.DocumentDate = clonePtr(d.DocumentDate)
	out.Author = clonePtr(d.Author)
	return &out
}

func strPtr(s string) *string { return &s }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
