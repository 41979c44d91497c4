package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

func newPlanRouter(t *testing.T, processor *model.Processor, baseURL string) *mux.Router {
	t.Helper()

	repos := &service.Repositories{Processors: &stubProcessors{processor: processor}}

	router := mux.NewRouter()
	NewPlanHandler(nil, repos, nil, baseURL, logger.NewNop()).RegisterRoutes(router)
	return router
}

func TestListProcessorsExposesWebhookURL(t *testing.T) {
	processor := testProcessor(t)
	router := newPlanRouter(t, processor, "https://billing.example.com")

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+processor.TenantID.String()+"/processors", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []processorView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)

	view := body.Data[0]
	assert.Equal(t, processor.ID, view.ID)
	assert.Equal(t, "paypal", view.Type)
	assert.True(t, view.IsSandbox)
	assert.Equal(t,
		"https://billing.example.com/webhooks/"+processor.WebhookSecret+"/paypal",
		view.WebhookURL)
}

func TestListProcessorsInvalidTenantIDRejected(t *testing.T) {
	router := newPlanRouter(t, testProcessor(t), "https://billing.example.com")

	req := httptest.NewRequest(http.MethodGet, "/tenants/not-a-uuid/processors", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid tenant id"}`, rec.Body.String())
}

func TestListProcessorsUnknownTenantEmpty(t *testing.T) {
	router := newPlanRouter(t, testProcessor(t), "https://billing.example.com")

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+uuid.NewString()+"/processors", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []processorView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
}
