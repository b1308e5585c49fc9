package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/models"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log.WithField("test", true)
}

func TestNormalizeBase(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare host", "https://api.example.com", "https://api.example.com"},
		{"trailing slash", "https://api.example.com/", "https://api.example.com"},
		{"many trailing slashes", "https://api.example.com///", "https://api.example.com"},
		{"surrounding whitespace", "  https://api.example.com/v1  ", "https://api.example.com/v1"},
		{"sub-path kept", "https://api.example.com/v1/casestatus", "https://api.example.com/v1/casestatus"},
		{"duplicated tail collapsed", "https://api.example.com/casestatus/casestatus", "https://api.example.com/casestatus"},
		{"duplicated tail with slash", "https://api.example.com/api/api/", "https://api.example.com/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeBase(tt.in); got != tt.want {
				t.Errorf("NormalizeBase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeBaseIdempotent(t *testing.T) {
	inputs := []string{
		"https://api.example.com/",
		"https://api.example.com/casestatus/casestatus",
		"https://api.example.com/v1/queue",
	}
	for _, in := range inputs {
		once := NormalizeBase(in)
		if twice := NormalizeBase(once); twice != once {
			t.Errorf("NormalizeBase not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestGetQueueSendsAuthAndParams(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{"queue": []map[string]interface{}{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token", 5*time.Second, testLog())
	if _, err := c.GetQueue(context.Background(), 25, true); err != nil {
		t.Fatalf("GetQueue() error = %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotQuery != "force=1&limit=25" {
		t.Errorf("query = %q, want force=1&limit=25", gotQuery)
	}
}

func TestGetQueueLenientDecoding(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []models.QueueItem
	}{
		{
			name: "queue key with tramite_id",
			body: `{"queue":[{"tramite_id":7,"receipt_number":"MSC1234567890"}]}`,
			want: []models.QueueItem{{ExternalID: 7, ReceiptNumber: "MSC1234567890"}},
		},
		{
			name: "tramites key with string id",
			body: `{"tramites":[{"id":"42","receipt_number":"EAC0001112223"}]}`,
			want: []models.QueueItem{{ExternalID: 42, ReceiptNumber: "EAC0001112223"}},
		},
		{
			name: "items key",
			body: `{"items":[{"tramite_id":1,"receipt_number":"LIN9998887776"}]}`,
			want: []models.QueueItem{{ExternalID: 1, ReceiptNumber: "LIN9998887776"}},
		},
		{
			name: "blank receipts skipped",
			body: `{"queue":[{"tramite_id":1,"receipt_number":"  "},{"tramite_id":2,"receipt_number":"MSC1234567890"}]}`,
			want: []models.QueueItem{{ExternalID: 2, ReceiptNumber: "MSC1234567890"}},
		},
		{
			name: "receipt whitespace trimmed",
			body: `{"queue":[{"tramite_id":3,"receipt_number":" MSC1234567890 "}]}`,
			want: []models.QueueItem{{ExternalID: 3, ReceiptNumber: "MSC1234567890"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "t", 5*time.Second, testLog())
			got, err := c.GetQueue(context.Background(), 0, false)
			if err != nil {
				t.Fatalf("GetQueue() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("GetQueue() returned %d items, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("item[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetQueueSoftFails(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>maintenance</html>"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, "t", 5*time.Second, testLog())
			items, err := c.GetQueue(context.Background(), 0, false)
			if err != nil {
				t.Fatalf("GetQueue() error = %v, want nil soft-fail", err)
			}
			if len(items) != 0 {
				t.Errorf("GetQueue() returned %d items, want 0", len(items))
			}
		})
	}
}

func TestGetQueueUnreachableHostSoftFails(t *testing.T) {
	c := New("http://127.0.0.1:1", "t", 500*time.Millisecond, testLog())
	items, err := c.GetQueue(context.Background(), 0, false)
	if err != nil {
		t.Fatalf("GetQueue() error = %v, want nil soft-fail", err)
	}
	if items != nil {
		t.Errorf("GetQueue() = %v, want nil", items)
	}
}

func TestGetQueuePropagatesCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := New(srv.URL, "t", 5*time.Second, testLog())
	if _, err := c.GetQueue(ctx, 0, false); err == nil {
		t.Fatal("GetQueue() error = nil, want context error")
	}
}

func TestReportResults(t *testing.T) {
	var gotPath string
	var gotBody map[string][]models.SuccessReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	c := New(srv.URL, "t", 5*time.Second, testLog())
	err := c.ReportResults(context.Background(), []models.SuccessReport{
		{TramiteID: 9, HTML: "<div>Case Was Received</div>"},
	})
	if err != nil {
		t.Fatalf("ReportResults() error = %v", err)
	}
	if gotPath != "/report" {
		t.Errorf("path = %q, want /report", gotPath)
	}
	if len(gotBody["items"]) != 1 || gotBody["items"][0].TramiteID != 9 {
		t.Errorf("body = %+v, want items wrapper with tramite 9", gotBody)
	}
}

func TestReportResultsEscalatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "t", 5*time.Second, testLog())
	err := c.ReportResults(context.Background(), []models.SuccessReport{{TramiteID: 1, HTML: "x"}})
	if err == nil {
		t.Fatal("ReportResults() error = nil, want non-nil on 502")
	}
}

func TestEmptyBatchesSkipHTTP(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := New(srv.URL, "t", 5*time.Second, testLog())
	if err := c.ReportResults(context.Background(), nil); err != nil {
		t.Fatalf("ReportResults(nil) error = %v", err)
	}
	if err := c.ReportFailed(context.Background(), nil); err != nil {
		t.Fatalf("ReportFailed(nil) error = %v", err)
	}
	if calls != 0 {
		t.Errorf("HTTP calls = %d, want 0 for empty batches", calls)
	}
}

func TestReportFailedPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, "t", 5*time.Second, testLog())
	err := c.ReportFailed(context.Background(), []models.FailureReport{
		{ReceiptNumber: "XXX0000000000", Error: "input not found"},
	})
	if err != nil {
		t.Fatalf("ReportFailed() error = %v", err)
	}
	if gotPath != "/report-failed" {
		t.Errorf("path = %q, want /report-failed", gotPath)
	}
}
