package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leaddesk/internal/domain"
	"leaddesk/internal/security"
	"leaddesk/internal/service"
)

// Mock mocks
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	if args.Error(0) == nil {
		u.ID = 42
	}
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests

	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	t.Run("Success", func(t *testing.T) {
		input := service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
			Role:     domain.RoleAgent,
		}

		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.Role == domain.RoleAgent && u.HashedPassword != "Password1!"
		})).Return(nil)

		user, err := svc.Register(context.Background(), input)
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
		assert.True(t, user.IsActive)
	})

	t.Run("DefaultsToBuyer", func(t *testing.T) {
		mockRepo.On("GetByUsername", mock.Anything, "buyer").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "buyer"
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{Username: "buyer", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleBuyer, user.Role)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		input := service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		}

		existing := &domain.User{Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), input)
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.Equal(t, domain.ErrConflict, err)
	})

	t.Run("AdminNotSelfService", func(t *testing.T) {
		_, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "root", Password: "pw", Role: domain.RoleAdmin,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLogin(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	hashed, err := hasher.Hash("correct")
	require.NoError(t, err)
	agent := &domain.User{ID: 7, Username: "agent", HashedPassword: hashed, Role: domain.RoleAgent, IsActive: true}
	mockRepo.On("GetByUsername", mock.Anything, "agent").Return(agent, nil)
	mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, int64(7)).Return(agent, nil)

	t.Run("Success", func(t *testing.T) {
		resp, err := svc.Login(context.Background(), service.LoginInput{Username: "agent", Password: "correct"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", resp.TokenType)

		claims, err := tokenSvc.Parse(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "agent", claims.Role)

		user, err := svc.Authenticate(context.Background(), resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "agent", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "ghost", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("BadToken", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
