package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:funlen
func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addUser("ana", RoleUser, false)
	env.addUser("bob", RoleUser, true)

	tests := []struct {
		name     string
		req      LoginRequest
		wantErr  error
		wantRole Role
	}{
		{"should pass: valid credentials", LoginRequest{"ana", "secret123"}, nil, RoleUser},
		{"should pass: username is trimmed", LoginRequest{"  ana ", "secret123"}, nil, RoleUser},
		{"should fail: wrong password", LoginRequest{"ana", "wrong-password"}, ErrBadCredentials, ""},
		{"should fail: unknown user", LoginRequest{"carl", "secret123"}, ErrBadCredentials, ""},
		{"should fail: blocked before password check", LoginRequest{"bob", "wrong-password"}, ErrUserBlocked, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := env.users.Login(ctx, tc.req)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ana", resp.Username)
			assert.Equal(t, tc.wantRole, resp.Role)
			assert.NotEmpty(t, resp.Token)

			user, err := env.users.Authenticate(ctx, resp.Token)
			require.NoError(t, err)
			assert.Equal(t, "ana", user.Username)
			assert.Empty(t, user.Password)
		})
	}

	t.Run("should fail: storage failure is internal", func(t *testing.T) {
		env := newTestEnv()
		env.storage.Users.(*MemoryRecordStore[User]).Err = errors.New("redis down")
		_, err := env.users.Login(ctx, LoginRequest{"ana", "secret123"})
		require.Error(t, err)
		assert.Equal(t, CodeInternal, AsLibraryError(err).Code)
	})
}

func TestUserService_Authenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	ana := env.addUser("ana", RoleUser, false)

	t.Run("should fail: garbage token", func(t *testing.T) {
		_, err := env.users.Authenticate(ctx, "not-a-token")
		assert.Equal(t, ErrUnauthenticated, err)
	})

	t.Run("should fail: token of a deleted user", func(t *testing.T) {
		token := env.token(User{Username: "ghost", Role: RoleUser})
		_, err := env.users.Authenticate(ctx, token)
		assert.Equal(t, ErrUnauthenticated, err)
	})

	t.Run("should fail: user blocked after login", func(t *testing.T) {
		token := env.token(ana)
		stored, err := env.storage.Users.GetOne(ctx, ana.ID)
		require.NoError(t, err)
		stored.Blocked = true
		require.NoError(t, env.storage.Users.Save(ctx, stored))

		_, err = env.users.Authenticate(ctx, token)
		assert.Equal(t, ErrUserBlocked, err)
	})
}

//nolint:funlen
func TestUserService_Register(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	req := RegisterRequest{Username: "ana", Password: "secret123", Name: "Ana", Surname: "Lopez", Email: "ana@library.test"}

	user, err := env.users.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, RoleUser, user.Role)
	assert.Empty(t, user.Password)

	stored, err := env.storage.Users.GetOne(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.Password)
	assert.NoError(t, CheckPasswordHash(stored.Password, "secret123"))

	tests := []struct {
		name    string
		change  func(r *RegisterRequest)
		message string
	}{
		{"should fail: duplicated username", func(r *RegisterRequest) { r.Email = "other@library.test" }, "username already exists: ana"},
		{"should fail: duplicated email", func(r *RegisterRequest) { r.Username = "other"; r.Email = "ANA@library.test" }, "email already registered: ANA@library.test"},
		{"should fail: missing username", func(r *RegisterRequest) { r.Username = " " }, "username is required"},
		{"should fail: missing password", func(r *RegisterRequest) { r.Username = "carl"; r.Email = "c@l.test"; r.Password = "" }, "password is required"},
		{"should fail: short password", func(r *RegisterRequest) { r.Username = "carl"; r.Email = "c@l.test"; r.Password = "abc" }, "password must have at least 6 characters"},
		{"should fail: invalid email", func(r *RegisterRequest) { r.Username = "carl"; r.Email = "not-an-email" }, "email is not valid"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := req
			tc.change(&r)
			_, err := env.users.Register(ctx, r)
			require.Error(t, err)
			le := AsLibraryError(err)
			assert.Equal(t, 400, le.Status)
			assert.Equal(t, CodeInvalidArgument, le.Code)
			assert.Equal(t, tc.message, le.Message)
		})
	}
}

func TestUserService_CreateAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	req := RegisterRequest{Username: "root", Password: "secret123", Email: "root@library.test"}

	admin, err := env.users.CreateAdmin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)

	req.Username, req.Email = "root2", "root2@library.test"
	_, err = env.users.CreateAdmin(ctx, req)
	assert.Equal(t, ErrAdminExists, err)
}

//nolint:funlen
func TestUserService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	admin := env.addUser("root", RoleAdmin, false)
	ana := env.addUser("ana", RoleUser, false)

	t.Run("should pass: update keeps the password when empty", func(t *testing.T) {
		before, _ := env.storage.Users.GetOne(ctx, ana.ID)
		updated, err := env.users.UpdateUser(ctx, admin, ana.ID, User{Username: "ana", Name: "Ana", Email: "ana@library.test", Blocked: true})
		require.NoError(t, err)
		assert.True(t, updated.Blocked)
		assert.Equal(t, RoleUser, updated.Role)
		after, _ := env.storage.Users.GetOne(ctx, ana.ID)
		assert.Equal(t, before.Password, after.Password)
	})

	t.Run("should fail: admin demotes itself", func(t *testing.T) {
		_, err := env.users.UpdateUser(ctx, admin, admin.ID, User{Username: "root", Email: "root@library.test", Role: RoleUser})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidState, AsLibraryError(err).Code)
	})

	t.Run("should pass: admin updates itself without a role", func(t *testing.T) {
		updated, err := env.users.UpdateUser(ctx, admin, admin.ID, User{Username: "root", Name: "Root", Email: "root@library.test"})
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, updated.Role)
		assert.Equal(t, "Root", updated.Name)
		stored, err := env.storage.Users.GetOne(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, stored.Role)
	})

	t.Run("should pass: empty role keeps another admin role", func(t *testing.T) {
		other := env.addUser("boss", RoleAdmin, false)
		updated, err := env.users.UpdateUser(ctx, admin, other.ID, User{Username: "boss", Email: "boss@library.test"})
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, updated.Role)
	})

	t.Run("should fail: update unknown user", func(t *testing.T) {
		_, err := env.users.UpdateUser(ctx, admin, 99, User{Username: "x", Email: "x@library.test"})
		assert.Equal(t, ErrUserNotFound, err)
	})

	t.Run("should fail: admin deletes itself", func(t *testing.T) {
		err := env.users.DeleteUser(ctx, admin, admin.ID)
		require.Error(t, err)
		assert.Equal(t, CodeInvalidState, AsLibraryError(err).Code)
	})

	t.Run("should fail: user with a pending loan", func(t *testing.T) {
		_, err := env.loans.Borrow(ctx, env.addBook("Dune", 1).ID, ana)
		require.NoError(t, err)
		err = env.users.DeleteUser(ctx, admin, ana.ID)
		require.Error(t, err)
		le := AsLibraryError(err)
		assert.Equal(t, 409, le.Status)
		assert.Equal(t, CodeIntegrity, le.Code)
	})

	t.Run("should pass: user with returned loans", func(t *testing.T) {
		_, err := env.loans.Return(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, env.users.DeleteUser(ctx, admin, ana.ID))
		_, err = env.users.GetUser(ctx, ana.ID)
		assert.Equal(t, ErrUserNotFound, err)
	})

	t.Run("should pass: list hides passwords", func(t *testing.T) {
		users, err := env.users.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Empty(t, users[0].Password)
	})
}
