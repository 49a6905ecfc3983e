package ccda

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testOrgOID = "2.16.840.1.113883.3.1234"

func testRecord() SampleRecord {
	return SampleRecord{
		PatientID:     "P000001",
		Given:         "María",
		Family:        "García",
		Gender:        "F",
		BirthDate:     time.Date(1980, time.May, 2, 0, 0, 0, 0, time.UTC),
		Author:        "Dra. Ana Torres",
		Title:         "Consulta de control",
		EffectiveTime: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
		Problems: []Problem{
			{Code: "44054006", DisplayName: "Diabetes mellitus tipo 2"},
		},
		Medications: []string{"Metformina", "Enalapril"},
	}
}

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)

	xmlData, err := gen.Generate(testRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := string(xmlData)
	if !strings.HasPrefix(s, "<?xml") {
		t.Error("expected XML declaration")
	}
	for _, want := range []string{
		`<ClinicalDocument xmlns="urn:hl7-org:v3">`,
		`extension="P000001"`,
		`<birthTime value="19800502">`,
		`<name>Metformina</name>`,
		`<name>Dra. Ana Torres</name>`,
		`displayName="Diabetes mellitus tipo 2" code="44054006"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected output to contain %s", want)
		}
	}
}

func TestGenerator_RoundTrip(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	xmlData, err := gen.Generate(testRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := NewParser().Parse("p000001.xml", xmlData)
	if err != nil {
		t.Fatalf("failed to parse generated document: %v", err)
	}

	if doc.Patient.ID == nil || *doc.Patient.ID != "P000001" {
		t.Errorf("expected patient id P000001, got %v", doc.Patient.ID)
	}
	if doc.Patient.Name == nil || *doc.Patient.Name != "María García" {
		t.Errorf("expected name 'María García', got %v", doc.Patient.Name)
	}
	if doc.Patient.Gender == nil || *doc.Patient.Gender != GenderFemale {
		t.Errorf("expected gender F, got %v", doc.Patient.Gender)
	}
	if doc.Patient.Age == nil || *doc.Patient.Age != 44 {
		t.Errorf("expected age 44, got %v", doc.Patient.Age)
	}
	if doc.Author == nil || *doc.Author != "Dra. Ana Torres" {
		t.Errorf("expected author, got %v", doc.Author)
	}
	if doc.DocumentDate == nil || *doc.DocumentDate != "20240301100000" {
		t.Errorf("expected document date 20240301100000, got %v", doc.DocumentDate)
	}

	if len(doc.Diagnoses) != 1 {
		t.Fatalf("expected 1 diagnosis, got %+v", doc.Diagnoses)
	}
	dx := doc.Diagnoses[0]
	if dx.Name != "Diabetes mellitus tipo 2" || dx.Code == nil || *dx.Code != "44054006" {
		t.Errorf("expected coded diabetes diagnosis, got %+v", dx)
	}

	if got := medicationNames(doc); !reflect.DeepEqual(got, []string{"Enalapril", "Metformina"}) {
		t.Errorf("expected [Enalapril Metformina], got %v", got)
	}
}

func TestGenerator_NotesAreMined(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	rec := SampleRecord{PatientID: "P2", Notes: "Cuadro agudo de bronchitis"}

	xmlData, err := gen.Generate(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, err := NewParser().Parse("p2.xml", xmlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kw := range []string{"agudo", "bronchitis"} {
		if findDiagnosis(doc, kw) == nil {
			t.Errorf("expected keyword diagnosis %q, got %v", kw, diagnosisNames(doc))
		}
	}
}

func TestGenerator_RequiresPatientID(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	if _, err := gen.Generate(SampleRecord{}); err == nil {
		t.Error("expected error for missing patient id")
	}
}

func TestGenerator_RandomRecordDeterministic(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	a := gen.RandomRecord(rand.New(rand.NewSource(42)))
	b := gen.RandomRecord(rand.New(rand.NewSource(42)))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical records for the same seed:\n%+v\n%+v", a, b)
	}
	if a.FileName() != strings.ToLower(a.PatientID)+".xml" {
		t.Errorf("unexpected file name %q", a.FileName())
	}
}

func TestGenerator_SameSeedSameBytes(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	for _, seed := range []int64{1, 7, 42} {
		a, err := gen.Generate(gen.RandomRecord(rand.New(rand.NewSource(seed))))
		if err != nil {
			t.Fatalf("seed %d: generate failed: %v", seed, err)
		}
		b, err := gen.Generate(gen.RandomRecord(rand.New(rand.NewSource(seed))))
		if err != nil {
			t.Fatalf("seed %d: generate failed: %v", seed, err)
		}
		if string(a) != string(b) {
			t.Errorf("seed %d: expected identical documents", seed)
		}
	}
}

func TestGenerator_EntryIDsScopedToDocument(t *testing.T) {
	rec := testRecord()
	rec.DocumentID = "doc-root"
	out, err := NewGenerator("Test Hospital", testOrgOID).Generate(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	xmlStr := string(out)
	for _, want := range []string{
		`root="doc-root" extension="problem-1"`,
		`root="doc-root" extension="med-1"`,
		`root="doc-root" extension="med-2"`,
	} {
		if !strings.Contains(xmlStr, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestGenerator_RandomCorpusParses(t *testing.T) {
	gen := NewGenerator("Test Hospital", testOrgOID)
	parser := NewParser()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		rec := gen.RandomRecord(rng)
		xmlData, err := gen.Generate(rec)
		if err != nil {
			t.Fatalf("record %d: generate failed: %v", i, err)
		}
		doc, err := parser.Parse(rec.FileName(), xmlData)
		if err != nil {
			t.Fatalf("record %d: parse failed: %v", i, err)
		}
		if doc.Patient.ID == nil || *doc.Patient.ID != rec.PatientID {
			t.Errorf("record %d: expected patient id %s, got %v", i, rec.PatientID, doc.Patient.ID)
		}
		if doc.Patient.Gender == nil {
			t.Errorf("record %d: expected gender", i)
		}
		if doc.Patient.Age == nil {
			t.Errorf("record %d: expected age for birth date %s", i, rec.BirthDate.Format("20060102"))
		}
		for _, p := range rec.Problems {
			if findDiagnosis(doc, p.DisplayName) == nil {
				t.Errorf("record %d: expected diagnosis %q", i, p.DisplayName)
			}
		}
	}
}
