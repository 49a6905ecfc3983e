package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cdastats/internal/platform/ccda"
)

// -- Fixtures --

// cdaXML builds a minimal clinical document. Empty arguments leave the
// corresponding element out.
func cdaXML(gender, birth, diagnosis, medication string) string {
	var b strings.Builder
	b.WriteString(`<ClinicalDocument xmlns="urn:hl7-org:v3"><recordTarget><patientRole><patient>`)
	if gender != "" {
		fmt.Fprintf(&b, `<administrativeGenderCode code="%s"/>`, gender)
	}
	if birth != "" {
		fmt.Fprintf(&b, `<birthTime value="%s"/>`, birth)
	}
	b.WriteString(`</patient></patientRole></recordTarget><component><structuredBody>`)
	if diagnosis != "" {
		fmt.Fprintf(&b, `<component><section><entry><act><entryRelationship><observation>`+
			`<code displayName="%s" code="X1"/></observation></entryRelationship></act></entry></section></component>`, diagnosis)
	}
	if medication != "" {
		fmt.Fprintf(&b, `<component><section><entry><substanceAdministration><consumable><manufacturedProduct>`+
			`<manufacturedMaterial><name>%s</name></manufacturedMaterial></manufacturedProduct></consumable>`+
			`</substanceAdministration></entry></section></component>`, medication)
	}
	b.WriteString(`</structuredBody></component></ClinicalDocument>`)
	return b.String()
}

// -- Mock Repository --

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*Run
	err  error
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uuid.UUID]*Run)}
}

func (m *mockRunRepo) Create(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs[r.ID] = r
	return nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id uuid.UUID) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r, nil
}

func (m *mockRunRepo) List(_ context.Context, limit, offset int) ([]*Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Run
	for _, r := range m.runs {
		result = append(result, r)
	}
	return result, len(result), nil
}

func newTestService() (*Service, *mockRunRepo) {
	repo := newMockRunRepo()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.Disabled)
	svc := NewService(ccda.NewParser(ccda.WithReferenceYear(2024)), repo, WithLogger(logger))
	return svc, repo
}

// -- Single Document --

func TestService_ParseOne(t *testing.T) {
	svc, _ := newTestService()
	err := svc.ParseOne(context.Background(), "a.xml", []byte(cdaXML("F", "19800101", "Asma", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs := svc.Documents(context.Background())
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Patient.Age == nil || *docs[0].Patient.Age != 44 {
		t.Errorf("expected age 44, got %v", docs[0].Patient.Age)
	}
}

func TestService_ParseOne_MalformedLeavesStoreUnchanged(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "good.xml", []byte(cdaXML("M", "", "", "")))

	err := svc.ParseOne(context.Background(), "bad.xml", []byte(`<ClinicalDocument><patient>`))
	if err == nil {
		t.Fatal("expected error for malformed document")
	}
	var xerr *ccda.XMLStructureError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected *ccda.XMLStructureError, got %T", err)
	}
	if xerr.FileName != "bad.xml" {
		t.Errorf("expected file name bad.xml, got %q", xerr.FileName)
	}
	if !strings.HasPrefix(err.Error(), "error parsing bad.xml") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if n := len(svc.Documents(context.Background())); n != 1 {
		t.Errorf("expected store to keep 1 document, got %d", n)
	}
}

func TestService_ParseOne_ExpiredContextLeavesStoreUnchanged(t *testing.T) {
	svc, _ := newTestService()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := svc.ParseOne(ctx, "late.xml", []byte(cdaXML("F", "19800101", "Asma", "")))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if n := len(svc.Documents(context.Background())); n != 0 {
		t.Errorf("expected empty store, got %d documents", n)
	}
}

func TestService_ParseOne_Appends(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("doc-%d.xml", i)
		if err := svc.ParseOne(context.Background(), name, []byte(cdaXML("F", "", "", ""))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	docs := svc.Documents(context.Background())
	for i, doc := range docs {
		if want := fmt.Sprintf("doc-%d.xml", i); doc.FileName != want {
			t.Errorf("expected %s at position %d, got %s", want, i, doc.FileName)
		}
	}
}

// -- Batch --

func TestService_ParseBatch_SkipsMalformed(t *testing.T) {
	svc, repo := newTestService()
	files := []FileInput{
		{Name: "1.xml", Content: cdaXML("F", "19800101", "Asma", "")},
		{Name: "2.xml", Content: cdaXML("M", "19900101", "Asma", "")},
		{Name: "broken.xml", Content: `<ClinicalDocument><unclosed>`},
		{Name: "3.xml", Content: cdaXML("F", "", "Diabetes", "")},
	}

	stats, err := svc.ParseBatch(context.Background(), files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalDocuments != 3 {
		t.Errorf("expected 3 documents, got %d", stats.TotalDocuments)
	}
	if stats.GenderDistribution["F"] != 2 || stats.GenderDistribution["M"] != 1 {
		t.Errorf("unexpected gender distribution %v", stats.GenderDistribution)
	}
	if stats.AverageAge != 39 {
		t.Errorf("expected average age 39, got %v", stats.AverageAge)
	}
	if len(repo.runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(repo.runs))
	}
	for _, run := range repo.runs {
		if run.FilesTotal != 4 || run.FilesParsed != 3 || run.FilesFailed != 1 {
			t.Errorf("unexpected run counts %+v", run)
		}
		if run.Source != SourceAPI {
			t.Errorf("expected source %q, got %q", SourceAPI, run.Source)
		}
	}
}

func TestService_ParseBatch_ReplacesStore(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "old.xml", []byte(cdaXML("M", "", "", "")))

	_, err := svc.ParseBatch(context.Background(), []FileInput{
		{Name: "new.xml", Content: cdaXML("F", "", "", "")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docs := svc.Documents(context.Background())
	if len(docs) != 1 || docs[0].FileName != "new.xml" {
		t.Errorf("expected store replaced by batch, got %d documents", len(docs))
	}
}

func TestService_ParseBatch_PreservesInputOrder(t *testing.T) {
	svc, _ := newTestService()
	svc.workers = 4
	var files []FileInput
	for i := 0; i < 20; i++ {
		files = append(files, FileInput{Name: fmt.Sprintf("%02d.xml", i), Content: cdaXML("F", "", "", "")})
	}
	if _, err := svc.ParseBatch(context.Background(), files); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, doc := range svc.Documents(context.Background()) {
		if doc.FileName != files[i].Name {
			t.Fatalf("expected %s at position %d, got %s", files[i].Name, i, doc.FileName)
		}
	}
}

func TestService_ParseBatch_Cancelled(t *testing.T) {
	svc, repo := newTestService()
	svc.ParseOne(context.Background(), "keep.xml", []byte(cdaXML("M", "", "", "")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.ParseBatch(ctx, []FileInput{
		{Name: "a.xml", Content: cdaXML("F", "", "", "")},
		{Name: "b.xml", Content: cdaXML("F", "", "", "")},
		{Name: "c.xml", Content: cdaXML("F", "", "", "")},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	docs := svc.Documents(context.Background())
	if len(docs) != 1 || docs[0].FileName != "keep.xml" {
		t.Errorf("expected store unchanged after cancellation")
	}
	if len(repo.runs) != 0 {
		t.Errorf("expected no run recorded, got %d", len(repo.runs))
	}
}

func TestService_ParseBatch_EmptyInput(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "old.xml", []byte(cdaXML("M", "", "", "")))

	stats, err := svc.ParseBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalDocuments != 0 {
		t.Errorf("expected 0 documents, got %d", stats.TotalDocuments)
	}
	if n := len(svc.Documents(context.Background())); n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}

func TestService_RunBatch_ReportsFailuresAndProgress(t *testing.T) {
	svc, _ := newTestService()
	var mu sync.Mutex
	calls := 0
	progress := func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	report, err := svc.RunBatch(context.Background(), "cli", []FileInput{
		{Name: "ok.xml", Content: cdaXML("F", "", "", "")},
		{Name: "empty.xml", Content: ""},
		{Name: "ok2.xml", Content: cdaXML("M", "", "", "")},
	}, progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Parsed != 2 {
		t.Errorf("expected 2 parsed, got %d", report.Parsed)
	}
	if len(report.Failures) != 1 || report.Failures[0].FileName != "empty.xml" {
		t.Errorf("unexpected failures %+v", report.Failures)
	}
	if report.RunID == uuid.Nil {
		t.Error("expected run id to be set")
	}
	if calls != 3 {
		t.Errorf("expected 3 progress calls, got %d", calls)
	}
}

func TestService_RunBatch_HistoryFailureIsNotFatal(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("database unavailable")

	report, err := svc.RunBatch(context.Background(), "cli", []FileInput{
		{Name: "ok.xml", Content: cdaXML("F", "", "", "")},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RunID != uuid.Nil {
		t.Error("expected no run id when recording failed")
	}
	if report.Statistics.TotalDocuments != 1 {
		t.Errorf("expected 1 document, got %d", report.Statistics.TotalDocuments)
	}
}

func TestService_ProcessingTime(t *testing.T) {
	svc, _ := newTestService()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	svc.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 250 * time.Millisecond)
	}

	stats, err := svc.ParseBatch(context.Background(), []FileInput{{Name: "a.xml", Content: cdaXML("F", "", "", "")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ProcessingTimeMS != 250 {
		t.Errorf("expected 250ms, got %d", stats.ProcessingTimeMS)
	}
}

// -- Statistics / Clear --

func TestService_Clear(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "a.xml", []byte(cdaXML("F", "19800101", "Asma", "Aspirina")))
	svc.Clear(context.Background())

	stats := svc.Statistics(context.Background())
	if stats.TotalDocuments != 0 || stats.TotalPatients != 0 {
		t.Errorf("expected zero totals, got %+v", stats)
	}
	if stats.AverageAge != 0 {
		t.Errorf("expected average age 0, got %v", stats.AverageAge)
	}
	if stats.GenderDistribution == nil || len(stats.GenderDistribution) != 0 {
		t.Errorf("expected empty gender distribution, got %v", stats.GenderDistribution)
	}
	if stats.TopDiagnoses == nil || len(stats.TopDiagnoses) != 0 {
		t.Errorf("expected empty top diagnoses, got %v", stats.TopDiagnoses)
	}
	if stats.TopMedications == nil || len(stats.TopMedications) != 0 {
		t.Errorf("expected empty top medications, got %v", stats.TopMedications)
	}
}

func TestService_StatisticsDoesNotMutate(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "a.xml", []byte(cdaXML("F", "", "Asma", "")))

	first := svc.Statistics(context.Background())
	second := svc.Statistics(context.Background())
	if first.TotalDocuments != second.TotalDocuments || len(svc.Documents(context.Background())) != 1 {
		t.Error("expected statistics to leave the store unchanged")
	}
}

func TestService_DocumentsReturnsCopies(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "a.xml", []byte(cdaXML("F", "", "Asma", "")))

	docs := svc.Documents(context.Background())
	docs[0].Diagnoses = nil
	docs[0].FileName = "changed.xml"

	again := svc.Documents(context.Background())
	if again[0].FileName != "a.xml" || len(again[0].Diagnoses) != 1 {
		t.Error("expected stored document to be unaffected by caller changes")
	}
}

func TestService_Export(t *testing.T) {
	svc, _ := newTestService()
	svc.ParseOne(context.Background(), "a.xml", []byte(cdaXML("F", "19800101", "Asma", "Aspirina")))

	bundle, err := svc.Export(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Type != "collection" {
		t.Errorf("expected collection bundle, got %q", bundle.Type)
	}
	if len(bundle.Entry) == 0 {
		t.Error("expected bundle entries")
	}
}

// -- Runs --

func TestService_GetRun(t *testing.T) {
	svc, _ := newTestService()
	report, err := svc.RunBatch(context.Background(), "cli", []FileInput{{Name: "a.xml", Content: cdaXML("F", "", "", "")}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := svc.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Source != "cli" {
		t.Errorf("expected source cli, got %q", run.Source)
	}

	if _, err := svc.GetRun(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestService_WithoutHistory(t *testing.T) {
	svc := NewService(ccda.NewParser(), nil)
	if _, err := svc.ParseBatch(context.Background(), []FileInput{{Name: "a.xml", Content: cdaXML("F", "", "", "")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runs, total, err := svc.ListRuns(context.Background(), 10, 0)
	if err != nil || total != 0 || len(runs) != 0 {
		t.Errorf("expected empty history, got %d runs (err=%v)", total, err)
	}
	if _, err := svc.GetRun(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

// -- Concurrency --

func TestService_ConcurrentParseAndRead(t *testing.T) {
	svc, _ := newTestService()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			svc.ParseOne(context.Background(), fmt.Sprintf("%d.xml", i), []byte(cdaXML("F", "", "Asma", "")))
		}(i)
		go func() {
			defer wg.Done()
			stats := svc.Statistics(context.Background())
			if stats.TotalDocuments != stats.GenderDistribution["F"] {
				t.Errorf("inconsistent snapshot: %d documents, %d female", stats.TotalDocuments, stats.GenderDistribution["F"])
			}
		}()
	}
	wg.Wait()

	if n := len(svc.Documents(context.Background())); n != 8 {
		t.Errorf("expected 8 documents, got %d", n)
	}
}
