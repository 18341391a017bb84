package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type UserServiceProvider interface {
	Login(ctx context.Context, req LoginRequest) (LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (User, error)
	CreateAdmin(ctx context.Context, req RegisterRequest) (User, error)
	Authenticate(ctx context.Context, token string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, actor User, id int64, user User) (User, error)
	DeleteUser(ctx context.Context, actor User, id int64) error
}

type UserService struct {
	logger  *zap.Logger
	storage *Storage
	tokens  TokenHandler
	mu      sync.Mutex
}

// NewUserService provides the accounts and authentication service.
func NewUserService(logger *zap.Logger, storage *Storage, tokens TokenHandler) UserServiceProvider {
	return &UserService{
		logger:  logger,
		storage: storage,
		tokens:  tokens,
	}
}

// Login checks the credentials and issues an access token. A blocked
// account is reported before the password is checked.
func (us *UserService) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	user, err := us.findByUsername(ctx, strings.TrimSpace(req.Username))
	if err == ErrUserNotFound {
		return resp, ErrBadCredentials
	}
	if err != nil {
		return resp, err
	}
	if user.Blocked {
		return resp, ErrUserBlocked
	}
	if err = CheckPasswordHash(user.Password, req.Password); err != nil {
		return resp, ErrBadCredentials
	}
	token, err := us.tokens.Issue(user.Username, user.Role)
	if err != nil {
		return resp, fmt.Errorf("service: issue token: %w", err)
	}
	return LoginResponse{Token: token, Username: user.Username, Role: user.Role}, nil
}

// Register signs up a library member.
func (us *UserService) Register(ctx context.Context, req RegisterRequest) (User, error) {
	return us.create(ctx, userFromRegistration(req, RoleUser), nil)
}

// CreateAdmin signs up the first administrator. It fails once any admin exists.
func (us *UserService) CreateAdmin(ctx context.Context, req RegisterRequest) (User, error) {
	return us.create(ctx, userFromRegistration(req, RoleAdmin), func(users []User) error {
		for _, u := range users {
			if u.IsAdmin() {
				return ErrAdminExists
			}
		}
		return nil
	})
}

// Authenticate resolves the user behind an access token.
func (us *UserService) Authenticate(ctx context.Context, token string) (User, error) {
	claims, err := us.tokens.Verify(token)
	if err != nil {
		us.logger.Debug("service: token rejected", zap.Error(err))
		return User{}, ErrUnauthenticated
	}
	user, err := us.findByUsername(ctx, claims.Subject)
	if err == ErrUserNotFound {
		return user, ErrUnauthenticated
	}
	if err != nil {
		return user, err
	}
	if user.Blocked {
		return user, ErrUserBlocked
	}
	return user.Public(), nil
}

func (us *UserService) ListUsers(ctx context.Context) ([]User, error) {
	users, err := us.storage.Users.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}

func (us *UserService) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := us.storage.Users.GetOne(ctx, id)
	if err != nil {
		return user, notFoundAs(err, ErrUserNotFound)
	}
	return user.Public(), nil
}

func (us *UserService) CreateUser(ctx context.Context, user User) (User, error) {
	return us.create(ctx, user, nil)
}

// UpdateUser replaces the user profile. The password is changed only when
// provided and an empty role keeps the current one.
func (us *UserService) UpdateUser(ctx context.Context, actor User, id int64, user User) (User, error) {
	keepRole := user.Role == ""
	if err := ValidateUser(&user, false); err != nil {
		return user, err
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	existing, err := us.storage.Users.GetOne(ctx, id)
	if err != nil {
		return user, notFoundAs(err, ErrUserNotFound)
	}
	if keepRole {
		user.Role = existing.Role
	}
	if actor.ID == id && (user.Blocked || user.Role != RoleAdmin) {
		return user, NewInvalidStateError("you can not block or demote your own account")
	}
	users, err := us.storage.Users.GetAll(ctx)
	if err != nil {
		return user, fmt.Errorf("service: list users: %w", err)
	}
	if err = ensureUniqueIdentity(users, id, user.Username, user.Email); err != nil {
		return user, err
	}

	user.ID = id
	if user.Password == "" {
		user.Password = existing.Password
	} else if user.Password, err = HashPassword(user.Password); err != nil {
		return user, fmt.Errorf("service: hash password: %w", err)
	}
	if err = us.storage.Users.Save(ctx, user); err != nil {
		return user, fmt.Errorf("service: save user: %w", err)
	}
	return user.Public(), nil
}

// DeleteUser removes an account without pending loans. Admins can not remove themselves.
func (us *UserService) DeleteUser(ctx context.Context, actor User, id int64) error {
	if actor.ID == id {
		return NewInvalidStateError("you can not delete your own account")
	}
	if _, err := us.storage.Users.GetOne(ctx, id); err != nil {
		return notFoundAs(err, ErrUserNotFound)
	}
	loans, err := us.storage.Loans.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("service: list loans: %w", err)
	}
	for _, loan := range loans {
		if loan.User.ID == id && loan.IsActive() {
			return NewIntegrityError("user has pending loans and can not be deleted")
		}
	}
	return notFoundAs(us.storage.Users.Delete(ctx, id), ErrUserNotFound)
}

// create validates and saves a new user. The check callback runs
// on the current users under the lock, before uniqueness checks.
func (us *UserService) create(ctx context.Context, user User, check func([]User) error) (User, error) {
	if err := ValidateUser(&user, true); err != nil {
		return user, err
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	users, err := us.storage.Users.GetAll(ctx)
	if err != nil {
		return user, fmt.Errorf("service: list users: %w", err)
	}
	if check != nil {
		if err = check(users); err != nil {
			return user, err
		}
	}
	if err = ensureUniqueIdentity(users, 0, user.Username, user.Email); err != nil {
		return user, err
	}

	if user.Password, err = HashPassword(user.Password); err != nil {
		return user, fmt.Errorf("service: hash password: %w", err)
	}
	if user.ID, err = us.storage.Users.NextID(ctx); err != nil {
		return user, fmt.Errorf("service: allocate user id: %w", err)
	}
	if err = us.storage.Users.Save(ctx, user); err != nil {
		return user, fmt.Errorf("service: save user: %w", err)
	}
	return user.Public(), nil
}

func (us *UserService) findByUsername(ctx context.Context, username string) (User, error) {
	users, err := us.storage.Users.GetAll(ctx)
	if err != nil {
		return User{}, fmt.Errorf("service: list users: %w", err)
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func ensureUniqueIdentity(users []User, id int64, username, email string) error {
	for _, u := range users {
		if u.ID == id {
			continue
		}
		if u.Username == username {
			return NewInvalidArgumentError("username already exists: " + username)
		}
		if strings.EqualFold(u.Email, email) {
			return NewInvalidArgumentError("email already registered: " + email)
		}
	}
	return nil
}

func userFromRegistration(req RegisterRequest, role Role) User {
	return User{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Role:     role,
	}
}
