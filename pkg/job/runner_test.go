package job

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
	"github.com/courtside-labs/crm-sync/pkg/retry"
	"github.com/courtside-labs/crm-sync/pkg/transformer"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type stubExtractor struct {
	err   error
	calls int
}

func (s *stubExtractor) Extract(ctx context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "downloads/export.csv", nil
}

type stubLocator struct {
	files []string
	err   error
}

func (s *stubLocator) List() ([]string, error) {
	return s.files, s.err
}

type stubTransformer struct {
	fail  map[string]error
	calls map[string]int
}

func (s *stubTransformer) Transform(path string) ([]models.CanonicalCustomerRecord, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[path]++
	if err, ok := s.fail[path]; ok {
		return nil, err
	}
	return []models.CanonicalCustomerRecord{{CustomerName: "Alice"}}, nil
}

type stubSink struct {
	batches []string
	loadErr error
	loads   int
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) Load(ctx context.Context, records []models.CanonicalCustomerRecord) (string, error) {
	s.loads++
	if s.loadErr != nil {
		return "", s.loadErr
	}
	id := "batch_1"
	s.batches = append(s.batches, id)
	return id, nil
}

type stubPublisher struct {
	events []string
}

func (s *stubPublisher) PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error {
	s.events = append(s.events, eventType)
	return nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, BaseDelay: time.Microsecond}
}

func TestRunAllArtifactsSucceed(t *testing.T) {
	pub := &stubPublisher{}
	r := NewRunner(
		&stubExtractor{},
		&stubLocator{files: []string{"a.csv", "b.csv"}},
		&stubTransformer{},
		&stubSink{},
		pub,
		fastPolicy(),
	)

	result := r.Run(context.Background())
	if result.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Message)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 file results, got %d", len(result.Results))
	}
	for _, fr := range result.Results {
		if fr.Status != models.StatusSuccess || fr.BatchID == "" {
			t.Fatalf("unexpected file result: %+v", fr)
		}
	}

	want := []string{"job.started", "batch.loaded", "batch.loaded", "job.completed"}
	if len(pub.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, pub.events)
	}
	for i := range want {
		if pub.events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], pub.events[i])
		}
	}
}

func TestRunPartialFailureContinues(t *testing.T) {
	badErr := transformer.MalformedInputError{File: "b.csv", Reason: errors.New("missing column")}
	tr := &stubTransformer{fail: map[string]error{"b.csv": badErr}}
	r := NewRunner(
		&stubExtractor{},
		&stubLocator{files: []string{"a.csv", "b.csv"}},
		tr,
		&stubSink{},
		nil,
		fastPolicy(),
	)

	result := r.Run(context.Background())
	if result.Status != models.StatusError {
		t.Fatalf("expected overall error, got %s", result.Status)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 file results, got %d", len(result.Results))
	}
	if result.Results[0].Status != models.StatusSuccess {
		t.Fatalf("first artifact must still succeed: %+v", result.Results[0])
	}
	if result.Results[1].Status != models.StatusError || result.Results[1].Error == "" {
		t.Fatalf("second artifact must carry its error: %+v", result.Results[1])
	}
	if tr.calls["b.csv"] != 2 {
		t.Fatalf("transform of failing artifact must be retried, got %d calls", tr.calls["b.csv"])
	}
}

func TestRunExtractionFailureShortCircuits(t *testing.T) {
	ext := &stubExtractor{err: errors.New("login did not reach the export page")}
	sink := &stubSink{}
	r := NewRunner(ext, &stubLocator{files: []string{"a.csv"}}, &stubTransformer{}, sink, nil, fastPolicy())

	result := r.Run(context.Background())
	if result.Status != models.StatusError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if len(result.Results) != 0 {
		t.Fatalf("expected no per-file results, got %v", result.Results)
	}
	if ext.calls != 1 {
		t.Fatalf("extraction must not be retried, got %d calls", ext.calls)
	}
	if sink.loads != 0 {
		t.Fatal("sink must never be touched when extraction fails")
	}
}

func TestRunEmptyArtifactListIsError(t *testing.T) {
	r := NewRunner(&stubExtractor{}, &stubLocator{files: []string{}}, &stubTransformer{}, &stubSink{}, nil, fastPolicy())

	result := r.Run(context.Background())
	if result.Status != models.StatusError {
		t.Fatalf("expected error for empty artifact list, got %s", result.Status)
	}
	if result.Message == "" {
		t.Fatal("expected a message naming the failure")
	}
}

func TestRunLoadFailureRetriedThenSurfaced(t *testing.T) {
	s := &stubSink{loadErr: errors.New("store unavailable")}
	r := NewRunner(&stubExtractor{}, &stubLocator{files: []string{"a.csv"}}, &stubTransformer{}, s, nil, fastPolicy())

	result := r.Run(context.Background())
	if result.Status != models.StatusError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if s.loads != 2 {
		t.Fatalf("load must consume the retry budget, got %d calls", s.loads)
	}
	if result.Results[0].Error != "store unavailable" {
		t.Fatalf("last error must surface unchanged, got %q", result.Results[0].Error)
	}
}
