package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	r := New()
	r.SetMirrorTip(42)
	r.SetScanLag("account-a", 3)
	r.SetSubmissionQueueDepth(5)
	r.ObserveSubmissionAccepted()
	r.ObserveSubmissionRejected()
	r.ObserveSubmissionNetworkError()
	r.ObserveSubmissionRetry()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"walletd_mirror_tip_block_index 42",
		`walletd_scan_lag_blocks{account_id="account-a"} 3`,
		"walletd_submission_queue_depth 5",
		`walletd_submission_attempts_total{outcome="accepted"} 1`,
		`walletd_submission_attempts_total{outcome="rejected"} 1`,
		`walletd_submission_attempts_total{outcome="network_error"} 1`,
		"walletd_submission_retries_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response missing %q\nfull body:\n%s", want, body)
		}
	}
}

func TestSetScanLagIsPerAccount(t *testing.T) {
	r := New()
	r.SetScanLag("account-a", 10)
	r.SetScanLag("account-b", 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()

	if !strings.Contains(body, `walletd_scan_lag_blocks{account_id="account-a"} 10`) {
		t.Errorf("missing account-a lag, body:\n%s", body)
	}
	if !strings.Contains(body, `walletd_scan_lag_blocks{account_id="account-b"} 0`) {
		t.Errorf("missing account-b lag, body:\n%s", body)
	}
}
