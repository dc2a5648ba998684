package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	row := SessionRow{
		ID:        "sess-1",
		Role:      "recruiter",
		StateJSON: `{"id":"sess-1","mode":"education"}`,
		UpdatedAt: time.Now(),
	}
	if err := s.PutSession(row); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Role != "recruiter" {
		t.Errorf("Role = %q, want %q", got.Role, "recruiter")
	}
	if got.StateJSON != row.StateJSON {
		t.Errorf("StateJSON = %q, want %q", got.StateJSON, row.StateJSON)
	}
}

func TestSessionUpsertReplacesState(t *testing.T) {
	s := openTestStore(t)

	row := SessionRow{ID: "sess-1", Role: "engineer", StateJSON: `{"mode":"education"}`, UpdatedAt: time.Now()}
	if err := s.PutSession(row); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	row.StateJSON = `{"mode":"sent"}`
	if err := s.PutSession(row); err != nil {
		t.Fatalf("PutSession (upsert): %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.StateJSON != `{"mode":"sent"}` {
		t.Errorf("StateJSON = %q after upsert", got.StateJSON)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionRemovesTurns(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutSession(SessionRow{ID: "sess-1", Role: "engineer", StateJSON: "{}", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	if err := s.SaveTurn(Turn{ID: "t-1", SessionID: "sess-1", TurnIndex: 0, Query: "hi", Category: "greeting", SignalsJSON: "[]", ModeBefore: "education", ModeAfter: "education", ActionsJSON: "[]", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	if err := s.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	turns, err := s.ListTurns("sess-1", 10)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns after delete, want 0", len(turns))
	}
	if err := s.DeleteSession("sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteSession = %v, want ErrNotFound", err)
	}
}

func TestTurnLogOrder(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		turn := Turn{
			ID:          "t-" + string(rune('a'+i)),
			SessionID:   "sess-1",
			TurnIndex:   i,
			Query:       "q",
			Category:    "general",
			SignalsJSON: "[]",
			ModeBefore:  "education",
			ModeAfter:   "education",
			ActionsJSON: "[]",
			CreatedAt:   time.Now(),
		}
		if err := s.SaveTurn(turn); err != nil {
			t.Fatalf("SaveTurn %d: %v", i, err)
		}
	}

	turns, err := s.ListTurns("sess-1", 10)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.TurnIndex != i {
			t.Errorf("turns[%d].TurnIndex = %d, want %d", i, turn.TurnIndex, i)
		}
	}
}

func TestIdempotencyLedger(t *testing.T) {
	s := openTestStore(t)

	done, err := s.AlreadyExecuted("sess-1:deliver_resume")
	if err != nil {
		t.Fatalf("AlreadyExecuted: %v", err)
	}
	if done {
		t.Error("key reported executed before MarkExecuted")
	}

	if err := s.MarkExecuted("sess-1:deliver_resume", "sess-1", "deliver_resume", "msg-123"); err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}

	done, err = s.AlreadyExecuted("sess-1:deliver_resume")
	if err != nil {
		t.Fatalf("AlreadyExecuted (after mark): %v", err)
	}
	if !done {
		t.Error("key not reported executed after MarkExecuted")
	}

	// Re-recording the same key must not fail.
	if err := s.MarkExecuted("sess-1:deliver_resume", "sess-1", "deliver_resume", "msg-456"); err != nil {
		t.Errorf("MarkExecuted (repeat): %v", err)
	}
}

func TestDistributionOnePerSession(t *testing.T) {
	s := openTestStore(t)

	first := Distribution{ID: "d-1", SessionID: "sess-1", Email: "a@example.com", Name: "Ana", DeliveryID: "msg-1", CreatedAt: time.Now()}
	if err := s.RecordDistribution(first); err != nil {
		t.Fatalf("RecordDistribution: %v", err)
	}
	dup := Distribution{ID: "d-2", SessionID: "sess-1", Email: "b@example.com", CreatedAt: time.Now()}
	if err := s.RecordDistribution(dup); err != nil {
		t.Fatalf("RecordDistribution (dup): %v", err)
	}

	got, err := s.GetDistribution("sess-1")
	if err != nil {
		t.Fatalf("GetDistribution: %v", err)
	}
	if got.Email != "a@example.com" {
		t.Errorf("Email = %q, want first insert kept", got.Email)
	}
}

func TestPatchDistributionDetailsFirstValueWins(t *testing.T) {
	s := openTestStore(t)

	d := Distribution{ID: "d-1", SessionID: "sess-1", Email: "a@example.com", CreatedAt: time.Now()}
	if err := s.RecordDistribution(d); err != nil {
		t.Fatalf("RecordDistribution: %v", err)
	}

	if err := s.PatchDistributionDetails("sess-1", "Acme", "", ""); err != nil {
		t.Fatalf("PatchDistributionDetails: %v", err)
	}
	if err := s.PatchDistributionDetails("sess-1", "Globex", "Staff Engineer", "next month"); err != nil {
		t.Fatalf("PatchDistributionDetails (second): %v", err)
	}

	got, err := s.GetDistribution("sess-1")
	if err != nil {
		t.Fatalf("GetDistribution: %v", err)
	}
	if got.Company != "Acme" {
		t.Errorf("Company = %q, want %q (first value kept)", got.Company, "Acme")
	}
	if got.Position != "Staff Engineer" {
		t.Errorf("Position = %q, want %q", got.Position, "Staff Engineer")
	}
	if got.Timeline != "next month" {
		t.Errorf("Timeline = %q, want %q", got.Timeline, "next month")
	}
}

func TestKnowledgeDocCRUD(t *testing.T) {
	s := openTestStore(t)

	doc := KnowledgeDoc{
		ID:        "doc-1",
		Title:     "Distributed caching project",
		Content:   "Led the design of a sharded cache layer.",
		Source:    "manual",
		Tags:      `["projects"]`,
		CreatedAt: time.Now(),
	}
	if err := s.SaveKnowledgeDoc(doc); err != nil {
		t.Fatalf("SaveKnowledgeDoc: %v", err)
	}

	got, err := s.GetKnowledgeDoc("doc-1")
	if err != nil {
		t.Fatalf("GetKnowledgeDoc: %v", err)
	}
	if got.Title != doc.Title {
		t.Errorf("Title = %q, want %q", got.Title, doc.Title)
	}
	if got.VectorID != "" {
		t.Errorf("VectorID = %q before embedding, want empty", got.VectorID)
	}

	if err := s.UpdateKnowledgeDocVectorID("doc-1", "vec-1"); err != nil {
		t.Fatalf("UpdateKnowledgeDocVectorID: %v", err)
	}
	got, err = s.GetKnowledgeDoc("doc-1")
	if err != nil {
		t.Fatalf("GetKnowledgeDoc (after vector): %v", err)
	}
	if got.VectorID != "vec-1" {
		t.Errorf("VectorID = %q, want %q", got.VectorID, "vec-1")
	}

	docs, err := s.ListKnowledgeDocs(10, 0)
	if err != nil {
		t.Fatalf("ListKnowledgeDocs: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	if err := s.DeleteKnowledgeDoc("doc-1"); err != nil {
		t.Fatalf("DeleteKnowledgeDoc: %v", err)
	}
	if _, err := s.GetKnowledgeDoc("doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetKnowledgeDoc after delete = %v, want ErrNotFound", err)
	}
}

func TestJobClaimLifecycle(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "knowledge_embed", PayloadJSON: `{"doc_id":"doc-1"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"knowledge_embed"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil {
		t.Fatal("ClaimNextJob returned nil, want job")
	}
	if claimed.ID != "job-1" {
		t.Errorf("claimed ID = %q, want %q", claimed.ID, "job-1")
	}
	if claimed.Status != "running" {
		t.Errorf("claimed Status = %q, want running", claimed.Status)
	}

	// A running job is not claimable again.
	again, err := s.ClaimNextJob([]string{"knowledge_embed"})
	if err != nil {
		t.Fatalf("ClaimNextJob (second): %v", err)
	}
	if again != nil {
		t.Errorf("claimed running job %q twice", again.ID)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestFailJobRetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "knowledge_embed", PayloadJSON: "{}", MaxAttempts: 2}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"knowledge_embed"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	// First failure reschedules in the future: not claimable right now.
	if err := s.FailJob("job-1", "embed endpoint down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	claimed, err := s.ClaimNextJob([]string{"knowledge_embed"})
	if err != nil {
		t.Fatalf("ClaimNextJob (after fail): %v", err)
	}
	if claimed != nil {
		t.Error("job claimable immediately after failure, want backoff delay")
	}

	// Second failure exhausts attempts.
	if err := s.FailJob("job-1", "embed endpoint down"); err != nil {
		t.Fatalf("FailJob (second): %v", err)
	}
	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = ?`, "job-1").Scan(&status); err != nil {
		t.Fatalf("querying job status: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q after exhausting attempts, want failed", status)
	}
}

func TestClaimNextJobIgnoresOtherTypes(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-1", Type: "other", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claimed, err := s.ClaimNextJob([]string{"knowledge_embed"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed job of type %q, want nil", claimed.Type)
	}
}
