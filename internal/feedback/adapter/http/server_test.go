package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedback-sync/internal/auth"
	"feedback-sync/internal/auth/adapter/persistence/memory"
	"feedback-sync/internal/auth/domain/model"
	"feedback-sync/internal/auth/testutil"
	storehttp "feedback-sync/internal/feedback/adapter/http"
	"feedback-sync/internal/feedback/adapter/memstore"
	"feedback-sync/internal/feedback/adapter/wire"
	feedbackmodel "feedback-sync/internal/feedback/domain/model"
	apperrors "feedback-sync/internal/shared/errors"
	"feedback-sync/internal/shared/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type ServerTestSuite struct {
	suite.Suite
	app     *fiber.App
	store   *memstore.Store
	metrics *metrics.ServerMetrics
}

func (suite *ServerTestSuite) SetupTest() {
	repo := memory.NewRepository()
	module, err := auth.NewAuthModule(repo, repo, testutil.Config(), nil)
	suite.Require().NoError(err)

	suite.store = memstore.New(nil, memstore.WithRules(memstore.DefaultRules()))
	registry := prometheus.NewRegistry()
	suite.metrics = metrics.NewServerMetrics(registry)
	suite.app = storehttp.NewServer(suite.store, module, registry, suite.metrics, nil)
}

func (suite *ServerTestSuite) do(method, path, token string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := suite.app.Test(req)
	suite.Require().NoError(err)
	return resp
}

func (suite *ServerTestSuite) signUp(email string) model.Identity {
	resp := suite.do("POST", "/v1/auth/signup", "", wire.Credentials{Email: email, Password: "secret123"})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)
	var identity model.Identity
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&identity))
	return identity
}

func (suite *ServerTestSuite) TestCreateDocument_ResolvesServerTimestamp() {
	identity := suite.signUp("ana@example.com")

	data, fields := wire.EncodeData(map[string]interface{}{
		feedbackmodel.FieldUserID:    identity.UID,
		feedbackmodel.FieldName:      "Ana",
		feedbackmodel.FieldRating:    5,
		feedbackmodel.FieldComment:   "served over http",
		feedbackmodel.FieldCreatedAt: feedbackmodel.ServerTimestamp,
	})
	resp := suite.do("POST", "/v1/collections/feedbacks/documents", identity.Token,
		wire.WriteRequest{Data: data, ServerTimestamps: fields})
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)

	var out wire.WriteResponse
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	stored, ok := suite.store.Get(feedbackmodel.CollectionFeedbacks, out.ID)
	suite.Require().True(ok)
	suite.False(feedbackmodel.IsServerTimestamp(stored[feedbackmodel.FieldCreatedAt]))
	suite.NotNil(stored[feedbackmodel.FieldCreatedAt])
}

func (suite *ServerTestSuite) TestCreateDocument_ForeignOwnerDenied() {
	identity := suite.signUp("ana@example.com")

	resp := suite.do("POST", "/v1/collections/feedbacks/documents", identity.Token, wire.WriteRequest{
		Data: map[string]interface{}{feedbackmodel.FieldUserID: "someone-else", feedbackmodel.FieldRating: 5},
	})
	suite.Equal(http.StatusForbidden, resp.StatusCode)
	var body apperrors.AppError
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	suite.Equal(apperrors.CodePermissionDenied, body.Code)
}

func (suite *ServerTestSuite) TestCreateDocument_RequiresToken() {
	resp := suite.do("POST", "/v1/collections/feedbacks/documents", "", wire.WriteRequest{
		Data: map[string]interface{}{feedbackmodel.FieldUserID: "u1"},
	})
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (suite *ServerTestSuite) TestCreateDocument_MissingData() {
	identity := suite.signUp("ana@example.com")

	resp := suite.do("POST", "/v1/collections/feedbacks/documents", identity.Token, fiber.Map{})
	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (suite *ServerTestSuite) TestListen_RequiresUpgrade() {
	identity := suite.signUp("ana@example.com")

	resp := suite.do("GET", "/v1/listen?token="+identity.Token, "", nil)
	suite.Equal(http.StatusUpgradeRequired, resp.StatusCode)
}

func (suite *ServerTestSuite) TestMetricsAndHealth() {
	resp := suite.do("GET", "/healthz", "", nil)
	suite.Equal(http.StatusOK, resp.StatusCode)

	resp = suite.do("GET", "/metrics", "", nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	suite.Contains(string(body), "feedback_sync_devstore_http_requests_total")
	suite.Equal(1.0, promtestutil.ToFloat64(suite.metrics.Requests.WithLabelValues("GET", "/healthz", "200")))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
