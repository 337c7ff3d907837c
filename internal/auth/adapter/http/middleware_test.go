package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	authhttp "feedback-sync/internal/auth/adapter/http"
	"feedback-sync/internal/auth/domain/repository"
	"feedback-sync/internal/shared/contextkeys"
	apperrors "feedback-sync/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MiddlewareTestSuite struct {
	suite.Suite
	app        *fiber.App
	mockTokens *mockTokenService
	middleware *authhttp.AuthMiddleware
}

func (suite *MiddlewareTestSuite) SetupTest() {
	suite.mockTokens = &mockTokenService{}
	suite.middleware = authhttp.NewAuthMiddleware(suite.mockTokens, nil)
	suite.app = fiber.New()
	suite.app.Use(suite.middleware.Protect())
	suite.app.Get("/protected", func(c *fiber.Ctx) error {
		userID, exists := authhttp.GetUserID(c)
		if !exists {
			return c.Status(500).JSON(fiber.Map{"error": "user_id not found"})
		}
		ctxUID, _ := contextkeys.UserIDFrom(c.UserContext())
		email, _ := authhttp.GetUserEmail(c)
		return c.JSON(fiber.Map{"user_id": userID, "ctx_user_id": ctxUID, "email": email})
	})
}

func (suite *MiddlewareTestSuite) TestProtect_BearerHeader() {
	claims := &repository.Claims{UserID: "user-123", Email: "test@example.com"}
	suite.mockTokens.On("ValidateToken", mock.Anything, "valid-token").Return(claims, nil)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "valid-token"))
	resp, err := suite.app.Test(req)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(suite.T(), "user-123", body["user_id"])
	assert.Equal(suite.T(), "user-123", body["ctx_user_id"])
	assert.Equal(suite.T(), "test@example.com", body["email"])
	suite.mockTokens.AssertExpectations(suite.T())
}

func (suite *MiddlewareTestSuite) TestProtect_QueryToken() {
	claims := &repository.Claims{UserID: "user-123"}
	suite.mockTokens.On("ValidateToken", mock.Anything, "ws-token").Return(claims, nil)

	resp, err := suite.app.Test(httptest.NewRequest("GET", "/protected?token=ws-token", nil))

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func (suite *MiddlewareTestSuite) TestProtect_NoToken() {
	resp, err := suite.app.Test(httptest.NewRequest("GET", "/protected", nil))

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	suite.mockTokens.AssertNotCalled(suite.T(), "ValidateToken", mock.Anything, mock.Anything)
}

func (suite *MiddlewareTestSuite) TestProtect_InvalidToken() {
	suite.mockTokens.On("ValidateToken", mock.Anything, "expired").
		Return(nil, apperrors.NewAuthenticationError("token has expired").WithCode("token-expired"))

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer expired")
	resp, err := suite.app.Test(req)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	var body apperrors.AppError
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(suite.T(), "token-expired", body.Code)
}

func (suite *MiddlewareTestSuite) TestProtect_MalformedHeader() {
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := suite.app.Test(req)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}

func TestRespondError(t *testing.T) {
	app := fiber.New()
	app.Get("/denied", func(c *fiber.Ctx) error {
		return authhttp.RespondError(c, apperrors.ErrPermissionDenied.New())
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return authhttp.RespondError(c, fmt.Errorf("boom"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/denied", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
