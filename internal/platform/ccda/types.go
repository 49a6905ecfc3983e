package ccda

import "encoding/xml"

// CDA OIDs and codes used when writing documents.
const (
	OIDUSRealmHeader = "2.16.840.1.113883.10.20.22.1.1"
	OIDCCDDocument   = "2.16.840.1.113883.10.20.22.1.2"

	OIDMedicationsSection = "2.16.840.1.113883.10.20.22.2.1.1"
	OIDProblemsSection    = "2.16.840.1.113883.10.20.22.2.5.1"
	OIDMedicationEntry    = "2.16.840.1.113883.10.20.22.4.16"
	OIDProblemEntry       = "2.16.840.1.113883.10.20.22.4.3"

	LOINCMedications = "10160-0"
	LOINCProblems    = "11450-4"

	OIDLOINC       = "2.16.840.1.113883.6.1"
	OIDSNOMED      = "2.16.840.1.113883.6.96"
	OIDAdminGender = "2.16.840.1.113883.5.1"
)

// ClinicalDocument is the root element of a CDA R2 document.
type ClinicalDocument struct {
	XMLName       xml.Name      `xml:"urn:hl7-org:v3 ClinicalDocument"`
	TypeID        *InstanceID   `xml:"typeId,omitempty"`
	TemplateIDs   []InstanceID  `xml:"templateId,omitempty"`
	ID            *InstanceID   `xml:"id,omitempty"`
	Code          *Code         `xml:"code,omitempty"`
	Title         string        `xml:"title,omitempty"`
	EffectiveTime *TimeValue    `xml:"effectiveTime,omitempty"`
	RecordTarget  *RecordTarget `xml:"recordTarget,omitempty"`
	Author        *Author       `xml:"author,omitempty"`
	Custodian     *Custodian    `xml:"custodian,omitempty"`
	Component     *Component    `xml:"component,omitempty"`
}

// InstanceID is a unique instance identifier.
type InstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// Code represents a coded value. displayName is written before code so a
// reader pairing the two on one element sees the name first.
type Code struct {
	DisplayName    string `xml:"displayName,attr,omitempty"`
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
}

// TimeValue holds a time stamp in HL7 format (YYYYMMDD or YYYYMMDDHHmmss).
type TimeValue struct {
	Value string `xml:"value,attr,omitempty"`
}

// RecordTarget holds the patient information in the CDA header.
type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole,omitempty"`
}

// PatientRole contains patient identifiers and demographics.
type PatientRole struct {
	IDs     []InstanceID `xml:"id,omitempty"`
	Patient *PatientElem `xml:"patient,omitempty"`
}

// PatientElem holds patient demographic data.
type PatientElem struct {
	Name                     *Name      `xml:"name,omitempty"`
	AdministrativeGenderCode *Code      `xml:"administrativeGenderCode,omitempty"`
	BirthTime                *TimeValue `xml:"birthTime,omitempty"`
}

// Name represents a person's name.
type Name struct {
	Given  string `xml:"given,omitempty"`
	Family string `xml:"family,omitempty"`
}

// Author holds authoring information in the CDA header.
type Author struct {
	Time           *TimeValue      `xml:"time,omitempty"`
	AssignedAuthor *AssignedAuthor `xml:"assignedAuthor,omitempty"`
}

// AssignedAuthor identifies the authoring clinician.
type AssignedAuthor struct {
	ID             *InstanceID     `xml:"id,omitempty"`
	AssignedPerson *AssignedPerson `xml:"assignedPerson,omitempty"`
}

// AssignedPerson carries the author's display name as plain text.
type AssignedPerson struct {
	Name string `xml:"name,omitempty"`
}

// Custodian holds the custodian organization in the CDA header.
type Custodian struct {
	AssignedCustodian *AssignedCustodian `xml:"assignedCustodian,omitempty"`
}

// AssignedCustodian contains the custodian organization.
type AssignedCustodian struct {
	RepresentedCustodianOrganization *CustodianOrganization `xml:"representedCustodianOrganization,omitempty"`
}

// CustodianOrganization identifies the custodian.
type CustodianOrganization struct {
	IDs   []InstanceID `xml:"id,omitempty"`
	Names []string     `xml:"name,omitempty"`
}

// Component wraps the structured body of the CDA document.
type Component struct {
	StructuredBody *StructuredBody `xml:"structuredBody,omitempty"`
}

// StructuredBody holds the document sections.
type StructuredBody struct {
	Components []SectionComponent `xml:"component,omitempty"`
}

// SectionComponent wraps a single section.
type SectionComponent struct {
	Section *Section `xml:"section,omitempty"`
}

// Section represents a CDA section with template, code, narrative, and entries.
type Section struct {
	TemplateIDs []InstanceID `xml:"templateId,omitempty"`
	Code        *Code        `xml:"code,omitempty"`
	Title       string       `xml:"title,omitempty"`
	Text        string       `xml:"text,omitempty"`
	Entries     []Entry      `xml:"entry,omitempty"`
}

// Entry represents a CDA entry element containing clinical data.
type Entry struct {
	TypeCode                string                   `xml:"typeCode,attr,omitempty"`
	Act                     *Act                     `xml:"act,omitempty"`
	SubstanceAdministration *SubstanceAdministration `xml:"substanceAdministration,omitempty"`
}

// Act represents a CDA act element.
type Act struct {
	ClassCode          string              `xml:"classCode,attr,omitempty"`
	MoodCode           string              `xml:"moodCode,attr,omitempty"`
	TemplateIDs        []InstanceID        `xml:"templateId,omitempty"`
	IDs                []InstanceID        `xml:"id,omitempty"`
	StatusCode         *Code               `xml:"statusCode,omitempty"`
	EntryRelationships []EntryRelationship `xml:"entryRelationship,omitempty"`
}

// EntryRelationship links entries together.
type EntryRelationship struct {
	TypeCode    string            `xml:"typeCode,attr,omitempty"`
	Observation *ObservationEntry `xml:"observation,omitempty"`
}

// ObservationEntry represents a CDA observation.
type ObservationEntry struct {
	ClassCode string `xml:"classCode,attr,omitempty"`
	MoodCode  string `xml:"moodCode,attr,omitempty"`
	Code      *Code  `xml:"code,omitempty"`
}

// SubstanceAdministration represents a medication administration entry.
type SubstanceAdministration struct {
	ClassCode   string       `xml:"classCode,attr,omitempty"`
	MoodCode    string       `xml:"moodCode,attr,omitempty"`
	TemplateIDs []InstanceID `xml:"templateId,omitempty"`
	IDs         []InstanceID `xml:"id,omitempty"`
	StatusCode  *Code        `xml:"statusCode,omitempty"`
	Consumable  *Consumable  `xml:"consumable,omitempty"`
}

// Consumable wraps a manufactured product (medication).
type Consumable struct {
	ManufacturedProduct *ManufacturedProduct `xml:"manufacturedProduct,omitempty"`
}

// ManufacturedProduct holds a medication material.
type ManufacturedProduct struct {
	ManufacturedMaterial *ManufacturedMaterial `xml:"manufacturedMaterial,omitempty"`
}

// ManufacturedMaterial holds the medication code and its free-text name.
type ManufacturedMaterial struct {
	Code *Code  `xml:"code,omitempty"`
	Name string `xml:"name,omitempty"`
}
