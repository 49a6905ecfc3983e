package ccda

import (
	"fmt"

	"github.com/ehr/cdastats/internal/platform/fhir"
)

// ProvenanceExtensionURL marks how a condition or medication was found.
const ProvenanceExtensionURL = "urn:cdastats:extraction-provenance"

// ToFHIR projects the document onto FHIR R4 resources: one Patient, one
// Condition per diagnosis and one MedicationStatement per medication. id
// prefixes every resource id so several documents can share a Bundle.
func (d *Document) ToFHIR(id string) []map[string]interface{} {
	patientID := id + "-patient"
	resources := make([]map[string]interface{}, 0, 1+len(d.Diagnoses)+len(d.Medications))

	patient := map[string]interface{}{
		"resourceType": "Patient",
		"id":           patientID,
		"meta":         fhir.Meta{Source: d.FileName},
	}
	if d.Patient.ID != nil {
		patient["identifier"] = []fhir.Identifier{{Use: "usual", Value: *d.Patient.ID}}
	}
	if d.Patient.Name != nil {
		patient["name"] = []fhir.HumanName{{Use: "official", Text: *d.Patient.Name}}
	}
	if d.Patient.Gender != nil {
		patient["gender"] = fhirGender(*d.Patient.Gender)
	}
	if d.Patient.BirthDate != nil {
		if t, err := parseHL7Time(*d.Patient.BirthDate); err == nil {
			patient["birthDate"] = t.Format("2006-01-02")
		}
	}
	resources = append(resources, patient)

	subject := fhir.Reference{Reference: fhir.FormatReference("Patient", patientID)}

	for i, dx := range d.Diagnoses {
		cond := map[string]interface{}{
			"resourceType": "Condition",
			"id":           fmt.Sprintf("%s-condition-%d", id, i+1),
			"subject":      subject,
		}
		code := fhir.CodeableConcept{Text: dx.Name}
		if dx.Code != nil {
			code.Coding = []fhir.Coding{{Code: *dx.Code, Display: dx.Name}}
		}
		cond["code"] = code
		if dx.CodeSystem != nil {
			cond["extension"] = []fhir.Extension{{URL: ProvenanceExtensionURL, ValueCode: *dx.CodeSystem}}
		}
		if d.DocumentDate != nil {
			cond["recordedDate"] = formatParsedDate(*d.DocumentDate)
		}
		resources = append(resources, cond)
	}

	for i, med := range d.Medications {
		resources = append(resources, map[string]interface{}{
			"resourceType":              "MedicationStatement",
			"id":                        fmt.Sprintf("%s-medication-%d", id, i+1),
			"status":                    "active",
			"subject":                   subject,
			"medicationCodeableConcept": fhir.CodeableConcept{Text: med.Name},
			"extension":                 []fhir.Extension{{URL: ProvenanceExtensionURL, ValueCode: med.MedicationType}},
		})
	}

	return resources
}

func fhirGender(g string) string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}
