package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fraud_detector/internal/api"
	"fraud_detector/internal/detector"
	"fraud_detector/internal/domain"
	"fraud_detector/internal/ingest"
	"fraud_detector/internal/repository/memory"
	"fraud_detector/internal/service"
	"fraud_detector/pkg/crypto"
	"fraud_detector/pkg/metrics"

	"github.com/shopspring/decimal"
)

const batchHeader = "transaction_id,user_id,timestamp,merchant_name,amount"

type testEnv struct {
	refRepo *memory.ReferenceRepository

	screener *detector.Screener
	alerts   *service.AlertService
	sink     *service.MockSink
	handler  *api.APIHandler
	signer   *crypto.Signer
	logger   *slog.Logger
}

func setup(t *testing.T) *testEnv {
	return setupWith(t, ingest.ModeLenient, "")
}

func setupWith(t *testing.T, mode ingest.Mode, secret string) *testEnv {
	t.Helper()
	refRepo := memory.NewReferenceRepository()

	det := detector.NewFraudDetector(nil, nil)
	screener := detector.NewScreener(refRepo, det, mode, nil)

	metricsCollector := metrics.NewMetricsCollector(nil)
	signer := crypto.NewSigner(secret, nil)
	logger := slog.Default()

	sink := &service.MockSink{}
	alerts := service.NewAlertService([]service.Sink{sink}, 2, 2, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = alerts.Shutdown(ctx)
	})

	handler := api.NewAPIHandler(screener, refRepo, metricsCollector, signer, alerts, logger)

	return &testEnv{
		refRepo:  refRepo,
		screener: screener,
		alerts:   alerts,
		sink:     sink,
		handler:  handler,
		signer:   signer,
		logger:   logger,
	}
}

func mustAddFraudMerchant(t *testing.T, env *testEnv, name string) {
	t.Helper()
	if err := env.refRepo.AddFraudMerchant(context.Background(), name); err != nil {
		t.Fatalf("add fraud merchant failed: %v", err)
	}
}

func mustSetCreditLimit(t *testing.T, env *testEnv, userID string, limit int64) {
	t.Helper()
	if err := env.refRepo.SetCreditLimit(context.Background(), userID, decimal.NewFromInt(limit)); err != nil {
		t.Fatalf("set credit limit failed: %v", err)
	}
}

func callDetect(t *testing.T, env *testEnv, csv string, headers map[string]string) (*domain.ScreeningReport, int, *api.ErrorResponse) {
	t.Helper()
	r := httptest.NewRequest("POST", "/api/v1/detect", strings.NewReader(csv))
	r.Header.Set("Content-Type", "text/csv")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()

	env.handler.DetectHandler(w, r)
	code := w.Result().StatusCode

	if code >= 200 && code < 300 {
		var report domain.ScreeningReport
		if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
			t.Fatalf("decode report failed: %v", err)
		}
		return &report, code, nil
	}

	var errResp api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response failed: %v", err)
	}
	return nil, code, &errResp
}

func callMerchantUpdate(t *testing.T, env *testEnv, handlerFn http.HandlerFunc, path, name string) (int, *api.ErrorResponse) {
	t.Helper()
	b, _ := json.Marshal(api.MerchantRequest{MerchantName: name})
	r := httptest.NewRequest("POST", path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handlerFn(w, r)
	code := w.Result().StatusCode

	if code >= 400 {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode error response failed: %v", err)
		}
		return code, &errResp
	}
	return code, nil
}

func findFlagged(report *domain.ScreeningReport, id string) *domain.FlaggedTransaction {
	for i := range report.Flagged {
		if report.Flagged[i].ID == id {
			return &report.Flagged[i]
		}
	}
	return nil
}

func TestIntegration_DetectFlagsFraudMerchant(t *testing.T) {
	env := setup(t)
	mustAddFraudMerchant(t, env, "ScamStore")

	csv := strings.Join([]string{
		batchHeader,
		"t1,u1,2024-03-01T10:00:00Z,ScamStore,5",
		"t2,u2,2024-03-01T10:01:00Z,Amazon,120",
	}, "\n")

	report, code, _ := callDetect(t, env, csv, nil)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if report.BatchSize != 2 {
		t.Fatalf("expected batch size 2, got %d", report.BatchSize)
	}
	if len(report.Flagged) != 1 {
		t.Fatalf("expected 1 flagged transaction, got %d", len(report.Flagged))
	}

	ft := report.Flagged[0]
	if ft.ID != "t1" {
		t.Fatalf("expected t1 flagged, got %s", ft.ID)
	}
	if len(ft.Reasons) != 1 || ft.Reasons[0] != "FraudulentMerchantRule" {
		t.Fatalf("expected only FraudulentMerchantRule, got %v", ft.Reasons)
	}
}

func TestIntegration_DetectHighAmountBoundary(t *testing.T) {
	env := setup(t)

	csv := strings.Join([]string{
		batchHeader,
		"t1,u1,2024-03-01T10:00:00Z,Amazon,10000",
		"t2,u2,2024-03-01T10:01:00Z,Amazon,10001",
	}, "\n")

	report, code, _ := callDetect(t, env, csv, nil)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if found := findFlagged(report, "t1"); found != nil {
		t.Fatalf("amount 10000 must not be flagged, got reasons %v", found.Reasons)
	}
	found := findFlagged(report, "t2")
	if found == nil {
		t.Fatalf("amount 10001 must be flagged")
	}
	if len(found.Reasons) != 1 || found.Reasons[0] != "HighAmountRule" {
		t.Fatalf("expected only HighAmountRule, got %v", found.Reasons)
	}
}

func TestIntegration_DetectRapidFireBurst(t *testing.T) {
	env := setup(t)

	// Six small purchases within 30 seconds, five of them simultaneous:
	// every one of them sits in a one-minute window holding at least five.
	csv := strings.Join([]string{
		batchHeader,
		"t1,U1,2024-03-01T10:00:00Z,ShopA,10",
		"t2,U1,2024-03-01T10:00:00Z,ShopA,10",
		"t3,U1,2024-03-01T10:00:00Z,ShopA,10",
		"t4,U1,2024-03-01T10:00:00Z,ShopA,10",
		"t5,U1,2024-03-01T10:00:00Z,ShopA,10",
		"t6,U1,2024-03-01T10:00:30Z,ShopA,10",
	}, "\n")

	report, code, _ := callDetect(t, env, csv, nil)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(report.Flagged) != 6 {
		t.Fatalf("expected all 6 transactions flagged, got %d", len(report.Flagged))
	}
	for _, ft := range report.Flagged {
		hasRapidFire := false
		for _, reason := range ft.Reasons {
			if reason == "RapidFireTransactionRule" {
				hasRapidFire = true
			}
			if reason == "HighAmountRule" || reason == "TotalSpendingRule" {
				t.Fatalf("%s unexpectedly flagged by %s", ft.ID, reason)
			}
		}
		if !hasRapidFire {
			t.Fatalf("%s missing RapidFireTransactionRule, got %v", ft.ID, ft.Reasons)
		}
	}
}

func TestIntegration_DetectLenientReportsRowErrors(t *testing.T) {
	env := setup(t)

	csv := strings.Join([]string{
		batchHeader,
		"t1,u1,2024-03-01T10:00:00Z,Amazon,50",
		"t2,u1,not-a-timestamp,Amazon,60",
		"t3,u2,2024-03-01T10:05:00Z,Walmart,70",
	}, "\n")

	report, code, _ := callDetect(t, env, csv, nil)
	if code != 200 {
		t.Fatalf("expected 200 in lenient mode, got %d", code)
	}
	if report.BatchSize != 2 {
		t.Fatalf("expected batch size 2, got %d", report.BatchSize)
	}
	if len(report.RowErrors) != 1 || report.RowErrors[0].Line != 3 {
		t.Fatalf("expected one row error on line 3, got %v", report.RowErrors)
	}
}

func TestIntegration_DetectStrictRejectsBatch(t *testing.T) {
	env := setupWith(t, ingest.ModeStrict, "")

	csv := strings.Join([]string{
		batchHeader,
		"t1,u1,2024-03-01T10:00:00Z,Amazon,50",
		"t2,u1,not-a-timestamp,Amazon,60",
	}, "\n")

	_, code, errResp := callDetect(t, env, csv, nil)
	if code != 400 {
		t.Fatalf("expected 400 in strict mode, got %d", code)
	}
	if errResp.Code != "MALFORMED_TRANSACTION" {
		t.Fatalf("expected code MALFORMED_TRANSACTION, got %s", errResp.Code)
	}
	if !strings.Contains(errResp.Details, "line 3") {
		t.Fatalf("expected the offending line in details, got %q", errResp.Details)
	}
}

func TestIntegration_DetectMissingColumn(t *testing.T) {
	env := setup(t)

	csv := "transaction_id,user_id,timestamp,merchant_name\nt1,u1,2024-03-01T10:00:00Z,Amazon"

	_, code, errResp := callDetect(t, env, csv, nil)
	if code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
	if errResp.Code != "INVALID_INPUT" {
		t.Fatalf("expected code INVALID_INPUT, got %s", errResp.Code)
	}
}

func TestIntegration_DetectMultipartUpload(t *testing.T) {
	env := setup(t)
	mustAddFraudMerchant(t, env, "ScamStore")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "batch.csv")
	if err != nil {
		t.Fatalf("create form file failed: %v", err)
	}
	csv := batchHeader + "\nt1,u1,2024-03-01T10:00:00Z,ScamStore,5"
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatalf("write form file failed: %v", err)
	}
	mw.Close()

	r := httptest.NewRequest("POST", "/api/v1/detect", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	env.handler.DetectHandler(w, r)
	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}

	var report domain.ScreeningReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report failed: %v", err)
	}
	if len(report.Flagged) != 1 || report.Flagged[0].ID != "t1" {
		t.Fatalf("expected t1 flagged from the uploaded file, got %+v", report.Flagged)
	}
}

func TestIntegration_DetectSignature(t *testing.T) {
	env := setupWith(t, ingest.ModeLenient, "test-secret")

	csv := batchHeader + "\nt1,u1,2024-03-01T10:00:00Z,Amazon,50"

	_, code, errResp := callDetect(t, env, csv, nil)
	if code != 401 {
		t.Fatalf("expected 401 without a signature, got %d", code)
	}
	if errResp.Code != "INVALID_SIGNATURE" {
		t.Fatalf("expected code INVALID_SIGNATURE, got %s", errResp.Code)
	}

	signature := env.signer.SignBatch([]byte(csv))
	report, code, _ := callDetect(t, env, csv, map[string]string{"X-Batch-Signature": signature})
	if code != 200 {
		t.Fatalf("expected 200 with a valid signature, got %d", code)
	}
	if report.BatchSize != 1 {
		t.Fatalf("expected batch size 1, got %d", report.BatchSize)
	}
}

func TestIntegration_MerchantLifecycle(t *testing.T) {
	env := setup(t)

	csv := batchHeader + "\nt1,u1,2024-03-01T10:00:00Z,PopUpShop,25"

	code, _ := callMerchantUpdate(t, env, env.handler.AddFraudMerchantHandler, "/api/v1/fraud-merchants/add", "PopUpShop")
	if code != 200 {
		t.Fatalf("expected 200 on add, got %d", code)
	}

	report, _, _ := callDetect(t, env, csv, nil)
	if findFlagged(report, "t1") == nil {
		t.Fatalf("expected t1 flagged after the merchant was listed")
	}

	code, _ = callMerchantUpdate(t, env, env.handler.RemoveFraudMerchantHandler, "/api/v1/fraud-merchants/remove", "PopUpShop")
	if code != 200 {
		t.Fatalf("expected 200 on remove, got %d", code)
	}

	report, _, _ = callDetect(t, env, csv, nil)
	if found := findFlagged(report, "t1"); found != nil {
		t.Fatalf("expected t1 clean after the merchant was delisted, got reasons %v", found.Reasons)
	}

	code, errResp := callMerchantUpdate(t, env, env.handler.RemoveFraudMerchantHandler, "/api/v1/fraud-merchants/remove", "PopUpShop")
	if code != 404 {
		t.Fatalf("expected 404 removing a merchant twice, got %d", code)
	}
	if errResp.Code != "NOT_FOUND" {
		t.Fatalf("expected code NOT_FOUND, got %s", errResp.Code)
	}
}

func TestIntegration_CreditLimitUpdate(t *testing.T) {
	env := setup(t)
	mustSetCreditLimit(t, env, "U123", 10000)

	// 30% of the configured 10000 limit is 3000.
	csv := batchHeader + "\nt1,U123,2024-03-01T10:00:00Z,Amazon,3000.01"

	report, _, _ := callDetect(t, env, csv, nil)
	found := findFlagged(report, "t1")
	if found == nil {
		t.Fatalf("expected t1 flagged against the configured limit")
	}
	if len(found.Reasons) != 1 || found.Reasons[0] != "CreditLimitRule" {
		t.Fatalf("expected only CreditLimitRule, got %v", found.Reasons)
	}

	b, _ := json.Marshal(api.CreditLimitRequest{UserID: "U123", CreditLimit: decimal.Zero})
	r := httptest.NewRequest("POST", "/api/v1/credit-limits/update", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.UpdateCreditLimitHandler(w, r)
	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for a zero limit, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_AlertForMultiReasonTransaction(t *testing.T) {
	env := setup(t)
	mustAddFraudMerchant(t, env, "ScamStore")

	// Flagged by both HighAmountRule and FraudulentMerchantRule, which
	// crosses the two-reason alert threshold.
	csv := batchHeader + "\nt1,u1,2024-03-01T10:00:00Z,ScamStore,10001"

	report, code, _ := callDetect(t, env, csv, nil)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(report.Flagged) != 1 || len(report.Flagged[0].Reasons) != 2 {
		t.Fatalf("expected t1 flagged with 2 reasons, got %+v", report.Flagged)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		delivered := env.sink.Delivered()
		if len(delivered) >= 1 {
			if delivered[0].TransactionID != "t1" {
				t.Fatalf("expected an alert for t1, got %s", delivered[0].TransactionID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no alert delivered for a multi-reason transaction")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	env := setup(t)

	r := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	env.handler.HealthCheckHandler(w, r)

	if w.Result().StatusCode != 200 {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %v", body["status"])
	}
}
