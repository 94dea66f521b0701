package diagnostics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	reports []Exception
	status  int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var exc Exception
	if err := json.NewDecoder(r.Body).Decode(&exc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.reports = append(c.reports, exc)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (c *collector) all() []Exception {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Exception(nil), c.reports...)
}

func TestNewReporterValidates(t *testing.T) {
	t.Parallel()

	_, err := NewReporter(Config{})
	require.Error(t, err)

	_, err = NewReporter(Config{Endpoint: "  "})
	require.Error(t, err)
}

func TestReportException(t *testing.T) {
	t.Parallel()

	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	r, err := NewReporter(Config{Endpoint: srv.URL, ClientID: "abc", Version: "1.0"})
	require.NoError(t, err)
	require.Contains(t, r.Agent(), "noderunner/1.0")
	require.Contains(t, r.Agent(), "client/abc")

	code := 42
	r.ReportException(&code, "boom")
	r.ReportException(nil, "no code")
	r.Wait()

	reports := col.all()
	require.Len(t, reports, 2)
	byMsg := map[string]Exception{}
	for _, rep := range reports {
		require.Equal(t, ExceptionType, rep.Type)
		require.Equal(t, r.Agent(), rep.Agent)
		byMsg[rep.Message] = rep
	}
	require.NotNil(t, byMsg["boom"].Code)
	require.Equal(t, 42, *byMsg["boom"].Code)
	require.Nil(t, byMsg["no code"].Code)
	require.NoError(t, r.LastError())
}

func TestReportExceptionSendsEveryReport(t *testing.T) {
	t.Parallel()

	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	r, err := NewReporter(Config{Endpoint: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	code := 42
	for i := 0; i < 3; i++ {
		r.ReportException(&code, "boom")
	}
	r.Wait()

	reports := col.all()
	require.Len(t, reports, 3)
	for _, rep := range reports {
		require.Equal(t, "boom", rep.Message)
		require.Equal(t, 42, *rep.Code)
	}
}

func TestReportExceptionRecordsFailure(t *testing.T) {
	t.Parallel()

	col := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(col)
	defer srv.Close()

	r, err := NewReporter(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	r.ReportException(nil, "boom")
	r.Wait()
	require.Error(t, r.LastError())
}
