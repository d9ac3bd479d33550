package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/auth"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/session"
	"github.com/tsiken/backend/internal/validation"
	"go.uber.org/zap"
)

const (
	resetKeyPrefix      = "password_reset:"
	accountStatusPrefix = "account_status:"
	accountStatusTTL    = 30 * time.Second
)

type SignUpInput struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	MiddleName   string `json:"middle_name" validate:"max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobile_number" validate:"required,ph_mobile"`
	Password     string `json:"password" validate:"required,strong_password"`
}

type CreateAccountInput struct {
	SignUpInput
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,oneof=admin user"`
}

type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"-"`
}

type UpdateProfileInput struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	MiddleName   string `json:"middle_name" validate:"max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	MobileNumber string `json:"mobile_number" validate:"required,ph_mobile"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password"`
}

type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,strong_password"`
	// Client identifies the caller for lockout, usually the device id.
	Client string `json:"-"`
}

type AuthResult struct {
	Token        string       `json:"token"`
	User         *models.User `json:"user"`
	AdminSession bool         `json:"admin_session"`
}

type AccountService struct {
	users    UserStore
	logs     LogWriter
	sessions *session.Store
	lockout  *Lockout
	mailer   Mailer
	events   events.Publisher
	rdb      *redis.Client
	cfg      *config.Config
	log      *zap.Logger

	// ctx bounds background mail sends; wg tracks them.
	ctx context.Context
	wg  sync.WaitGroup
}

// NewAccountService builds the service. ctx is the service lifetime:
// cancelling it aborts background mail sends.
func NewAccountService(
	ctx context.Context,
	users UserStore,
	logs LogWriter,
	sessions *session.Store,
	mailer Mailer,
	publisher events.Publisher,
	rdb *redis.Client,
	cfg *config.Config,
	log *zap.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		logs:     logs,
		sessions: sessions,
		lockout:  NewLockout(rdb, cfg.LoginMaxAttempts, cfg.LoginLockoutDuration, log),
		mailer:   mailer,
		events:   publisher,
		rdb:      rdb,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
	}
}

// Wait blocks until background mail sends have finished.
func (s *AccountService) Wait() {
	s.wg.Wait()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.create(ctx, in, models.RoleUser, "self")
	if err != nil {
		return nil, err
	}
	return s.issue(u, false)
}

// CreateAccount registers a user on behalf of an admin and mails the
// credentials. A mail failure does not undo the account.
func (s *AccountService) CreateAccount(ctx context.Context, actor *models.Identity, in CreateAccountInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.create(ctx, in.SignUpInput, in.Role, actor.Email)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func(msg AccountEmail) {
		defer s.wg.Done()
		mctx, cancel := context.WithTimeout(s.ctx, s.cfg.RemoteTimeout)
		defer cancel()
		if err := s.mailer.SendAccountEmail(mctx, msg); err != nil {
			s.log.Warn("account email not sent", zap.String("email", msg.Email), zap.Error(err))
		}
	}(AccountEmail{Email: u.Email, Username: u.Email, Password: in.Password, FirstName: u.FirstName})

	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionUserManagement,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      "Create Account",
		Description: fmt.Sprintf("Created %s account for %s", u.Role, u.Email),
		Meta:        map[string]any{"targetUserId": u.ID.String(), "role": u.Role},
	})
	return u, nil
}

func (s *AccountService) create(ctx context.Context, in SignUpInput, role, createdBy string) (*models.User, error) {
	email := normalizeEmail(in.Email)
	mobile := strings.TrimSpace(in.MobileNumber)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("email", "This email is already registered.")
	}
	exists, err = s.users.ExistsByMobile(ctx, mobile)
	if err != nil {
		return nil, fmt.Errorf("check mobile: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("mobile_number", "This mobile number is already registered.")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		MiddleName:   strings.TrimSpace(in.MiddleName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		MobileNumber: mobile,
		Role:         role,
		PasswordHash: hash,
		CreatedBy:    createdBy,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if cerr := conflictFromConstraint(err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("account created", zap.String("user_id", u.ID.String()), zap.String("role", role), zap.String("created_by", createdBy))
	return u, nil
}

func conflictFromConstraint(err error) error {
	constraint, ok := repositories.UniqueViolation(err)
	if !ok {
		return nil
	}
	if strings.Contains(constraint, "mobile") {
		return apperr.Conflict("mobile_number", "This mobile number is already registered.")
	}
	return apperr.Conflict("email", "This email is already registered.")
}

// SignIn verifies credentials and issues a token. Admins signing in from a
// known device also get an admin session on that device.
func (s *AccountService) SignIn(ctx context.Context, in SignInInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	subject := in.DeviceID
	if subject == "" {
		subject = "email:" + in.Email
	}
	if err := s.checkLockout(ctx, LockoutLogin, subject); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.failAttempt(ctx, LockoutLogin, subject, apperr.Unauthorized("invalid email or password"))
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, in.Password); err != nil {
		return nil, s.failAttempt(ctx, LockoutLogin, subject, apperr.Unauthorized("invalid email or password"))
	}
	if err := s.lockout.Reset(ctx, LockoutLogin, subject); err != nil {
		s.log.Warn("failed to reset login attempts", zap.Error(err))
	}
	if u.AccountLocked {
		return nil, apperr.Forbidden("account is locked, contact an administrator")
	}

	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", u.ID.String()), zap.Error(err))
	}

	adminSession := false
	if u.IsAdmin() && in.DeviceID != "" {
		if err := s.sessions.Create(ctx, in.DeviceID, u.Email, u.Role); err != nil {
			s.log.Error("failed to create admin session", zap.String("user_id", u.ID.String()), zap.Error(err))
		} else {
			adminSession = true
		}
	}

	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionSession,
		UserID:      u.ID.String(),
		UserName:    u.DisplayName(),
		Action:      "Login",
		Description: "User logged in",
		Meta:        map[string]any{"role": u.Role},
	})

	return s.issue(u, adminSession)
}

// checkLockout fails open when Redis is unavailable.
func (s *AccountService) checkLockout(ctx context.Context, scope, subject string) error {
	remaining, err := s.lockout.Remaining(ctx, scope, subject)
	if err != nil {
		s.log.Warn("lockout check failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}
	if remaining > 0 {
		return LockedOut(remaining)
	}
	return nil
}

// failAttempt records a failure for subject and returns cause, or a lockout
// error when this failure reached the limit.
func (s *AccountService) failAttempt(ctx context.Context, scope, subject string, cause error) error {
	locked, err := s.lockout.Fail(ctx, scope, subject)
	if err != nil {
		s.log.Warn("failed to record attempt", zap.String("scope", scope), zap.Error(err))
		return cause
	}
	if locked > 0 {
		return LockedOut(locked)
	}
	return cause
}

func (s *AccountService) issue(u *models.User, adminSession bool) (*AuthResult, error) {
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, u.ID, u.Email, u.Role, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, User: u, AdminSession: adminSession}, nil
}

// Logout clears the device's admin session.
func (s *AccountService) Logout(ctx context.Context, actor *models.Identity, deviceID string) error {
	if err := s.sessions.Clear(ctx, deviceID); err != nil {
		return err
	}
	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionSession,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      "Logout",
		Description: "User logged out",
	})
	return nil
}

func (s *AccountService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return u, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	mobile := strings.TrimSpace(in.MobileNumber)
	if mobile != u.MobileNumber {
		exists, err := s.users.ExistsByMobile(ctx, mobile)
		if err != nil {
			return nil, fmt.Errorf("check mobile: %w", err)
		}
		if exists {
			return nil, apperr.Conflict("mobile_number", "This mobile number is already registered.")
		}
	}

	u.FirstName = strings.TrimSpace(in.FirstName)
	u.MiddleName = strings.TrimSpace(in.MiddleName)
	u.LastName = strings.TrimSpace(in.LastName)
	u.MobileNumber = mobile
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if cerr := conflictFromConstraint(err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// ChangePassword re-authenticates with the current password first.
func (s *AccountService) ChangePassword(ctx context.Context, userID uuid.UUID, in ChangePasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(u.PasswordHash, in.CurrentPassword); err != nil {
		return &apperr.Error{
			Kind:    apperr.KindUnauthorized,
			Message: "current password is incorrect",
			Fields:  map[string]string{"current_password": "current password is incorrect"},
		}
	}
	if in.CurrentPassword == in.NewPassword {
		return apperr.Field("new_password", "new password must differ from the current one")
	}
	return s.setPassword(ctx, u.ID, in.NewPassword)
}

func (s *AccountService) setPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// RequestPasswordReset mails a one-time token. Unknown emails succeed
// silently so callers cannot discover which emails have accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validation.IsEmail(email) {
		return apperr.Field("email", "invalid email address")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.log.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("get user: %w", err)
	}

	token, err := auth.RandomToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.rdb.Set(ctx, resetKeyPrefix+token, u.ID.String(), s.cfg.PasswordResetTTL).Err(); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	err = s.mailer.SendPasswordReset(ctx, PasswordResetEmail{
		Email:     u.Email,
		FirstName: u.FirstName,
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.PasswordResetTTL).UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.rdb.Del(ctx, resetKeyPrefix+token)
		return apperr.Wrap(apperr.KindUnavailable, "could not send reset email, try again later", err)
	}
	return nil
}

// ResetPassword consumes a reset token. Tokens are single-use.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.Client != "" {
		if err := s.checkLockout(ctx, LockoutReset, in.Client); err != nil {
			return err
		}
	}
	invalid := apperr.Field("token", "reset link is invalid or has expired")

	raw, err := s.rdb.GetDel(ctx, resetKeyPrefix+in.Token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if in.Client == "" {
				return invalid
			}
			return s.failAttempt(ctx, LockoutReset, in.Client, invalid)
		}
		return fmt.Errorf("read reset token: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return invalid
	}
	if err := s.setPassword(ctx, id, in.NewPassword); err != nil {
		return err
	}
	if in.Client != "" {
		if err := s.lockout.Reset(ctx, LockoutReset, in.Client); err != nil {
			s.log.Warn("failed to reset reset attempts", zap.Error(err))
		}
	}
	return nil
}

func (s *AccountService) ListUsers(ctx context.Context, f repositories.UserFilter) ([]models.User, error) {
	if f.Role != nil && !validRole(*f.Role) {
		return nil, apperr.Field("role", "role must be admin or user")
	}
	return s.users.List(ctx, f)
}

func validRole(role string) bool {
	for _, r := range models.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *AccountService) SetRole(ctx context.Context, actor *models.Identity, id uuid.UUID, role string) error {
	if !validRole(role) {
		return apperr.Field("role", "role must be admin or user")
	}
	if actor.UserID == id.String() {
		return apperr.Forbidden("you cannot change your own role")
	}
	target, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	s.revokeAccess(ctx, target, "role_changed", role != models.RoleAdmin)
	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionUserManagement,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      "Change Role",
		Description: fmt.Sprintf("Changed role of %s from %s to %s", target.Email, target.Role, role),
		Meta:        map[string]any{"targetUserId": id.String(), "oldRole": target.Role, "newRole": role},
	})
	return nil
}

func (s *AccountService) SetLocked(ctx context.Context, actor *models.Identity, id uuid.UUID, locked bool) error {
	if actor.UserID == id.String() {
		return apperr.Forbidden("you cannot lock your own account")
	}
	target, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.SetLocked(ctx, id, locked); err != nil {
		return fmt.Errorf("set locked: %w", err)
	}
	s.revokeAccess(ctx, target, "lock_changed", locked)

	action, verb := "Unlock Account", "Unlocked"
	if locked {
		action, verb = "Lock Account", "Locked"
	}
	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionUserManagement,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      action,
		Description: fmt.Sprintf("%s account of %s", verb, target.Email),
		Meta:        map[string]any{"targetUserId": id.String()},
	})
	return nil
}

func (s *AccountService) DeleteUser(ctx context.Context, actor *models.Identity, id uuid.UUID) error {
	if actor.UserID == id.String() {
		return apperr.Forbidden("you cannot delete your own account")
	}
	target, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.revokeAccess(ctx, target, "deleted", true)
	s.appendLog(ctx, models.NewLogRecord{
		Collection:  models.CollectionUserManagement,
		UserID:      actor.UserID,
		UserName:    actor.Email,
		Action:      "Delete Account",
		Description: fmt.Sprintf("Deleted account of %s", target.Email),
		Meta:        map[string]any{"targetUserId": id.String()},
	})
	return nil
}

// CurrentAccount returns the stored role and lock state of a user. Results
// are cached in Redis for accountStatusTTL and dropped whenever an admin
// changes the role, lock state or existence of the account.
func (s *AccountService) CurrentAccount(ctx context.Context, id uuid.UUID) (*models.AccountStatus, error) {
	k := accountStatusPrefix + id.String()
	vals, err := s.rdb.HGetAll(ctx, k).Result()
	if err != nil {
		s.log.Warn("account status cache unavailable", zap.Error(err))
	} else if vals["role"] != "" {
		return &models.AccountStatus{Role: vals["role"], Locked: vals["locked"] == "1"}, nil
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	st := &models.AccountStatus{Role: u.Role, Locked: u.AccountLocked}

	locked := "0"
	if st.Locked {
		locked = "1"
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, "role", st.Role, "locked", locked)
	pipe.Expire(ctx, k, accountStatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("failed to cache account status", zap.Error(err))
	}
	return st, nil
}

func (s *AccountService) dropAccountStatus(ctx context.Context, id uuid.UUID) {
	if err := s.rdb.Del(ctx, accountStatusPrefix+id.String()).Err(); err != nil {
		s.log.Error("failed to drop cached account status", zap.String("user_id", id.String()), zap.Error(err))
	}
}

// revokeAccess drops the cached status of target, tells live connections to
// re-authenticate and, when clearSessions is set, removes every admin session
// it holds.
func (s *AccountService) revokeAccess(ctx context.Context, target *models.User, reason string, clearSessions bool) {
	s.dropAccountStatus(ctx, target.ID)
	if err := s.events.Publish(ctx, events.StreamAccounts, events.Event{
		Type:    events.EventAccountRevoked,
		Payload: map[string]any{"user_id": target.ID.String(), "reason": reason},
	}); err != nil {
		s.log.Warn("failed to publish account revocation", zap.String("user_id", target.ID.String()), zap.Error(err))
	}
	if !clearSessions {
		return
	}
	n, err := s.sessions.ClearUser(ctx, target.Email)
	if err != nil {
		s.log.Error("failed to clear admin sessions", zap.String("user_id", target.ID.String()), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("admin sessions revoked", zap.String("user_id", target.ID.String()), zap.Int("devices", n))
	}
}

func (s *AccountService) appendLog(ctx context.Context, rec models.NewLogRecord) {
	if err := s.logs.Append(ctx, rec); err != nil {
		s.log.Warn("failed to append activity log",
			zap.String("collection", rec.Collection),
			zap.String("action", rec.Action),
			zap.Error(err),
		)
	}
}
