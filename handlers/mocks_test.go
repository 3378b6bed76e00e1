package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/models"
	"github.com/upb/card-control/services/authorization"
	"github.com/upb/card-control/services/controls"
)

// MockCardService is a mock implementation of CardService
type MockCardService struct {
	mock.Mock
}

func (m *MockCardService) Create(ctx context.Context, principal string) (*models.Card, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

// MockControlService is a mock implementation of ControlService
type MockControlService struct {
	mock.Mock
}

func (m *MockControlService) Create(ctx context.Context, principal, cardID string, req controls.CreateRequest) (*models.Control, error) {
	args := m.Called(ctx, principal, cardID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Control), args.Error(1)
}

func (m *MockControlService) Delete(ctx context.Context, principal, cardID string, controlID int64) error {
	args := m.Called(ctx, principal, cardID, controlID)
	return args.Error(0)
}

func (m *MockControlService) List(ctx context.Context, cardID string) ([]*models.Control, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Control), args.Error(1)
}

func (m *MockControlService) Definitions() map[string]policy.Definition {
	args := m.Called()
	return args.Get(0).(map[string]policy.Definition)
}

// MockAuthorizationService is a mock implementation of AuthorizationService
type MockAuthorizationService struct {
	mock.Mock
}

func (m *MockAuthorizationService) Process(ctx context.Context) (*authorization.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authorization.Result), args.Error(1)
}

func (m *MockAuthorizationService) Authorize(ctx context.Context, principal string, txn *models.Transaction) (*authorization.Result, error) {
	args := m.Called(ctx, principal, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authorization.Result), args.Error(1)
}

func (m *MockAuthorizationService) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockAuthorizationService) History(ctx context.Context, cardID string, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, cardID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

// serve routes a request through a chi router so URL params resolve, with
// principal authenticated when non-empty
func serve(method, pattern, path string, body io.Reader, principal string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, path, body)
	if principal != "" {
		req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.Claims{Sub: principal}))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
