package ccda

import (
	"encoding/xml"
	"strings"
)

// documentDateMaxDepth keeps effectiveTime values of nested acts and
// entries out of the document date.
const documentDateMaxDepth = 3

// diagnosisContexts are element name fragments that mark a coded element
// as describing a problem.
var diagnosisContexts = []string{"observation", "diagnosis", "condition", "problem"}

// extraction is the mutable state of a single parse pass.
type extraction struct {
	doc           *Document
	referenceYear int
}

type attrKey struct {
	tag  string
	attr string
}

type attrRule func(x *extraction, value string, path elementPath)

type textRule func(x *extraction, text string, path elementPath)

var attributeRules = map[attrKey]attrRule{
	{"administrativegendercode", "code"}: func(x *extraction, v string, _ elementPath) {
		x.doc.Patient.Gender = strPtr(NormalizeGender(v))
	},
	{"birthtime", "value"}: func(x *extraction, v string, _ elementPath) {
		x.doc.Patient.BirthDate = strPtr(v)
		x.doc.Patient.Age = nil
		if age, ok := DeriveAge(v, x.referenceYear); ok {
			x.doc.Patient.Age = &age
		}
	},
	{"effectivetime", "value"}: func(x *extraction, v string, path elementPath) {
		if path.depth() <= documentDateMaxDepth {
			x.doc.DocumentDate = strPtr(v)
		}
	},
	// displayName opens a diagnosis; a code attribute that follows it on
	// the same element completes it.
	{"code", "displayname"}: func(x *extraction, v string, path elementPath) {
		if path.underAny(diagnosisContexts...) {
			x.doc.Diagnoses = append(x.doc.Diagnoses, Diagnosis{Name: v})
		}
	},
	{"code", "code"}: func(x *extraction, v string, path elementPath) {
		if n := len(x.doc.Diagnoses); n > 0 && path.underAny(diagnosisContexts...) {
			x.doc.Diagnoses[n-1].Code = strPtr(v)
		}
	},
	{"id", "extension"}: func(x *extraction, v string, path elementPath) {
		if path.under("patient") {
			x.doc.Patient.ID = strPtr(v)
		}
	},
}

var textRules = map[string]textRule{
	"given":  appendPatientName,
	"family": appendPatientName,
	"name": func(x *extraction, text string, path elementPath) {
		switch {
		case path.under("assignedperson"):
			x.doc.Author = strPtr(text)
		case path.underAny("manufacturedmaterial", "medication"):
			if name := NormalizeMedicationName(text); name != "" {
				x.doc.addMedication(name, ProvenanceStructured)
			}
		}
	},
	"title": mineNarrative,
	"text":  mineNarrative,
}

func appendPatientName(x *extraction, text string, path elementPath) {
	if !path.under("patient") {
		return
	}
	current := ""
	if x.doc.Patient.Name != nil {
		current = *x.doc.Patient.Name
	}
	x.doc.Patient.Name = strPtr(strings.TrimSpace(current + " " + text))
}

// mineNarrative covers both titles and narrative blocks; mineText applies
// the title table as well.
func mineNarrative(x *extraction, text string, _ elementPath) {
	mineText(x.doc, text)
}

func (x *extraction) openElement(tag string, attrs []xml.Attr, path elementPath) {
	for _, a := range attrs {
		rule, ok := attributeRules[attrKey{tag: tag, attr: strings.ToLower(a.Name.Local)}]
		if ok {
			rule(x, a.Value, path)
		}
	}
}

func (x *extraction) closeElement(tag, text string, path elementPath) {
	if rule, ok := textRules[tag]; ok {
		rule(x, text, path)
	}
}
