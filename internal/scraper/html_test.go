package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/retry"
)

const workdayFixture = `<html><body><ul>
<li data-automation-id="compositeContainer">
  <h3><a href="/en-US/External/job/Bangalore/Software-Engineer_JR123">Software Engineer</a></h3>
  <div data-automation-id="compositeLocation">Bangalore</div>
</li>
<li data-automation-id="compositeContainer">
  <a href="https://acme.wd5.myworkdayjobs.com/job/Remote/SRE_JR124">SRE</a>
  <span class="location">Remote - India</span>
</li>
<li data-automation-id="compositeContainer"><span>No link here</span></li>
</ul></body></html>`

func TestHTMLBoard_Workday(t *testing.T) {
	srv := serve(t, "text/html; charset=utf-8", workdayFixture)
	h := NewHTMLBoard(KindWorkday, 2*time.Second, 0, retry.Policy{MaxAttempts: 1})
	ep := Endpoint{Kind: KindWorkday, Company: "Acme", URL: srv.URL + "/External"}

	raw, err := h.FetchRaw(context.Background(), ep, FetchOptions{})
	require.NoError(t, err)
	jobs, err := h.Normalize(ep, raw)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "Software-Engineer_JR123", jobs[0].ExternalID)
	assert.Equal(t, "Software Engineer", jobs[0].Title)
	assert.Equal(t, "Bangalore", model.Deref(jobs[0].Location))
	assert.Equal(t, srv.URL+"/en-US/External/job/Bangalore/Software-Engineer_JR123", jobs[0].ApplyURL)
	assert.Equal(t, "workday", jobs[0].Source)

	assert.Equal(t, "SRE_JR124", jobs[1].ExternalID)
	assert.True(t, jobs[1].IsRemote)
}

func TestHTMLBoard_Workable(t *testing.T) {
	raw := RawPayload{Pages: []Page{{URL: "https://apply.workable.com/huggingface/", Format: FormatHTML, Body: []byte(`
	<ul><li class="job"><a href="/huggingface/j/ABC123/">ML Engineer</a><span class="job-location">Paris</span></li></ul>`)}}}
	h := NewHTMLBoard(KindWorkable, 0, 0, retry.Policy{MaxAttempts: 1})
	jobs, err := h.Normalize(Endpoint{Company: "Hugging Face"}, raw)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ABC123", jobs[0].ExternalID)
	assert.Equal(t, "https://apply.workable.com/huggingface/j/ABC123/", jobs[0].ApplyURL)
	assert.Equal(t, "Paris", model.Deref(jobs[0].Location))
}

func TestHTMLBoard_Phenom(t *testing.T) {
	raw := RawPayload{Pages: []Page{{URL: "https://careers.adobe.com/us/en/search-results", Format: FormatHTML, Body: []byte(`
	<div class="jobs-list-item"><a href="https://careers.adobe.com/us/en/job/R1"><span class="job-title">Designer</span></a>
	<span class="location">San Jose</span></div>`)}}}
	h := NewHTMLBoard(KindPhenom, 0, 0, retry.Policy{MaxAttempts: 1})
	jobs, err := h.Normalize(Endpoint{Company: "Adobe"}, raw)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Designer", jobs[0].Title)
	assert.Equal(t, "R1", jobs[0].ExternalID)
}

func TestHTMLBoard_StatusErrorIsReported(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	h := NewHTMLBoard(KindWorkday, time.Second, 0, retry.Policy{MaxAttempts: 3})
	_, err := h.FetchRaw(context.Background(), Endpoint{Kind: KindWorkday, URL: srv.URL}, FetchOptions{})
	require.Error(t, err)
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is not retried")
}

func TestHTMLBoard_RequiresURL(t *testing.T) {
	h := NewHTMLBoard(KindPhenom, 0, 0, retry.Policy{MaxAttempts: 1})
	_, err := h.FetchRaw(context.Background(), Endpoint{Kind: KindPhenom}, FetchOptions{})
	assert.Error(t, err)
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "JR1", lastSegment("/jobs/JR1"))
	assert.Equal(t, "JR1", lastSegment("https://x.com/jobs/JR1/"))
	assert.Equal(t, "JR1", lastSegment("/jobs/JR1?src=home"))
	assert.Equal(t, "/", lastSegment("/"))
}
