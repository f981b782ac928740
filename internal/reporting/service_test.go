package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

func intp(v int) *int { return &v }

func seededRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	// 2025-03-04 03:30 UTC is still March 3rd in Eastern time.
	repo.Calls = []calls.CallLog{
		{ID: 1, CallID: "call-A", CallerNumber: "+17705550100", Transcript: "hello", DurationSeconds: intp(60), Sentiment: calls.SentimentNeutral, CreatedAt: time.Date(2025, 3, 4, 3, 30, 0, 0, time.UTC)},
		{ID: 2, CallID: "call-B", CallerNumber: "+17705550199", Transcript: "bill, \"late\"", Sentiment: calls.SentimentPositive, EmailSent: true, CreatedAt: time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)},
		{ID: 3, CallID: "other-C", CallerNumber: "+14045550000", Transferred: true, CreatedAt: time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)},
	}
	repo.Emails = []calls.EmailEvent{
		{ID: "e1", CallID: "call-B", DeliveryStatus: calls.DeliverySent},
		{ID: "e2", CallID: "call-B", DeliveryStatus: calls.DeliveryFailed},
	}
	repo.Transfers = []calls.TransferEvent{{ID: "t1", CallID: "other-C", TargetNumber: "+17708674488"}}
	return repo
}

func TestService_Stats(t *testing.T) {
	st, err := NewService(seededRepo()).Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalCalls != 3 || st.EmailsSent != 1 || st.TransfersLogged != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.LastCallAt == nil || !st.LastCallAt.Equal(time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last call %v", st.LastCallAt)
	}
}

func TestService_ListPagesNewestFirst(t *testing.T) {
	svc := NewService(seededRepo())

	p, err := svc.List(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if p.Total != 3 || len(p.Calls) != 2 || p.Calls[0].CallID != "other-C" {
		t.Fatalf("unexpected first page %+v", p)
	}
	p, _ = svc.List(context.Background(), 2, 2)
	if len(p.Calls) != 1 || p.Calls[0].CallID != "call-A" {
		t.Fatalf("unexpected second page %+v", p)
	}
	p, _ = svc.List(context.Background(), 0, 5000)
	if p.Page != 1 || p.PageSize != MaxPageSize {
		t.Fatalf("expected clamped paging, got page=%d size=%d", p.Page, p.PageSize)
	}
}

func TestService_Search(t *testing.T) {
	svc := NewService(seededRepo())
	ctx := context.Background()

	got, err := svc.Search(ctx, SearchFilter{CallID: "CALL"})
	if err != nil || len(got) != 2 {
		t.Fatalf("call_id search: %d %v", len(got), err)
	}
	got, _ = svc.Search(ctx, SearchFilter{Phone: "0199"})
	if len(got) != 1 || got[0].CallID != "call-B" {
		t.Fatalf("phone search: %+v", got)
	}
	got, _ = svc.Search(ctx, SearchFilter{Date: "2025-03-03"})
	if len(got) != 1 || got[0].CallID != "call-A" {
		t.Fatalf("eastern day filter: %+v", got)
	}
	if _, err := svc.Search(ctx, SearchFilter{Date: "03/04/2025"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestService_Detail(t *testing.T) {
	svc := NewService(seededRepo())

	d, err := svc.Detail(context.Background(), "call-B")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(d.Emails) != 2 || len(d.Transfers) != 0 {
		t.Fatalf("unexpected detail %+v", d)
	}
	if _, err := svc.Detail(context.Background(), "missing"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewService(seededRepo()).ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if records[0][0] != "id" || records[0][8] != "created_at" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][1] != "other-C" || records[1][6] != "true" {
		t.Fatalf("expected newest call first, got %v", records[1])
	}
	if records[2][3] != "bill, \"late\"" || records[2][4] != "" {
		t.Fatalf("unexpected row %v", records[2])
	}
	if records[3][4] != "60" || records[3][8] != "2025-03-04T03:30:00Z" {
		t.Fatalf("unexpected row %v", records[3])
	}
}

func TestFormatEastern(t *testing.T) {
	got := FormatEastern(time.Date(2025, 7, 1, 18, 5, 0, 0, time.UTC))
	if got != "2025-07-01 02:05 PM ET" {
		t.Fatalf("unexpected format %q", got)
	}
	if FormatEastern(time.Time{}) != "" {
		t.Fatalf("expected empty string for zero time")
	}
}

func TestPostgresRepo_SearchBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(`WHERE caller_number ILIKE \$1 ESCAPE '\\' AND created_at >= \$2 AND created_at < \$3 ORDER BY created_at DESC, id DESC LIMIT \$4`).
		WithArgs(`%555\_%`, from, to, 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "call_id", "caller_number", "transcript", "duration_seconds", "sentiment",
			"transferred", "email_sent", "placeholder_kind", "created_at", "updated_at",
		}).AddRow(1, "c1", "+1555_0", "hi", nil, "neutral", false, false, "", from, from))

	rows, err := NewPostgresRepo(db).SearchCalls(context.Background(), "", "555_", &Range{From: from, To: to}, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 || rows[0].DurationSeconds != nil {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
