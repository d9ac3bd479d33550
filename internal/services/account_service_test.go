package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/auth"
	"github.com/tsiken/backend/internal/config"
	"github.com/tsiken/backend/internal/events"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/session"
	"go.uber.org/zap"
)

type accountFixture struct {
	svc      *AccountService
	users    *fakeUsers
	logs     *fakeLogs
	mailer   *fakeMailer
	pub      *recordingPublisher
	sessions *session.Store
	mr       *miniredis.Miniredis
	admin    *models.User
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	return newAccountFixtureCtx(t, context.Background())
}

func newAccountFixtureCtx(t *testing.T, lifetime context.Context) *accountFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := auth.HashPassword("Adm1nPass")
	require.NoError(t, err)
	admin := &models.User{
		ID:           uuid.New(),
		FirstName:    "Ana",
		LastName:     "Reyes",
		Email:        "ana@tsiken.ph",
		MobileNumber: "09170000001",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	}

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTExpiration:    time.Hour,
		PasswordResetTTL: time.Hour,
		RemoteTimeout:    time.Second,

		LoginMaxAttempts:     5,
		LoginLockoutDuration: time.Hour,
	}
	f := &accountFixture{
		users:    newFakeUsers(admin),
		logs:     &fakeLogs{},
		mailer:   newFakeMailer(),
		pub:      &recordingPublisher{},
		sessions: session.NewStore(rdb, 24*time.Hour, zap.NewNop()),
		mr:       mr,
		admin:    admin,
	}
	f.svc = NewAccountService(lifetime, f.users, f.logs, f.sessions, f.mailer, f.pub, rdb, cfg, zap.NewNop())
	return f
}

func (f *accountFixture) adminIdentity() *models.Identity {
	return &models.Identity{UserID: f.admin.ID.String(), Email: f.admin.Email, Role: models.RoleAdmin}
}

func signUpInput() SignUpInput {
	return SignUpInput{
		FirstName:    "Juan",
		LastName:     "Dela Cruz",
		Email:        "  Juan@Tsiken.PH ",
		MobileNumber: "09171234567",
		Password:     "Passw0rd",
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	res, err := f.svc.SignUp(ctx, signUpInput())
	require.NoError(t, err)
	assert.Equal(t, "juan@tsiken.ph", res.User.Email)
	assert.Equal(t, models.RoleUser, res.User.Role)

	claims, err := auth.ParseJWT("test-secret", res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	in, err := f.svc.SignIn(ctx, SignInInput{Email: "juan@tsiken.ph", Password: "Passw0rd", DeviceID: "dev-1"})
	require.NoError(t, err)
	assert.False(t, in.AdminSession, "regular users never get an admin session")
	assert.Len(t, f.logs.byCollection(models.CollectionSession), 1)
}

func TestSignUpRejectsDuplicates(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	in := signUpInput()
	in.Email = f.admin.Email
	_, err := f.svc.SignUp(ctx, in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, apperr.FieldsOf(err), "email")

	in = signUpInput()
	in.MobileNumber = f.admin.MobileNumber
	_, err = f.svc.SignUp(ctx, in)
	require.Error(t, err)
	assert.Contains(t, apperr.FieldsOf(err), "mobile_number")
}

func TestSignUpValidation(t *testing.T) {
	f := newAccountFixture(t)
	in := signUpInput()
	in.Password = "password"
	in.MobileNumber = "12345"
	_, err := f.svc.SignUp(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	fields := apperr.FieldsOf(err)
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "mobile_number")
}

func TestAdminSignInCreatesSession(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	res, err := f.svc.SignIn(ctx, SignInInput{Email: "ANA@tsiken.ph", Password: "Adm1nPass", DeviceID: "tablet"})
	require.NoError(t, err)
	assert.True(t, res.AdminSession)

	ok, err := f.sessions.IsAdmin(ctx, "tablet", f.adminIdentity())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.Logout(ctx, f.adminIdentity(), "tablet"))
	ok, err = f.sessions.IsAdmin(ctx, "tablet", f.adminIdentity())
	require.NoError(t, err)
	assert.False(t, ok)

	logs := f.logs.byCollection(models.CollectionSession)
	require.Len(t, logs, 2)
	assert.Equal(t, "Logout", logs[1].Action)
}

func TestSignInFailures(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignIn(ctx, SignInInput{Email: "ana@tsiken.ph", Password: "nope"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.SignIn(ctx, SignInInput{Email: "ghost@tsiken.ph", Password: "nope"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	require.NoError(t, f.users.SetLocked(ctx, f.admin.ID, true))
	_, err = f.svc.SignIn(ctx, SignInInput{Email: "ana@tsiken.ph", Password: "Adm1nPass"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCreateAccountMailsAndLogs(t *testing.T) {
	f := newAccountFixture(t)
	in := CreateAccountInput{SignUpInput: signUpInput(), ConfirmPassword: "Passw0rd", Role: models.RoleAdmin}

	u, err := f.svc.CreateAccount(context.Background(), f.adminIdentity(), in)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, f.admin.Email, u.CreatedBy)

	select {
	case msg := <-f.mailer.accounts:
		assert.Equal(t, "juan@tsiken.ph", msg.Email)
		assert.Equal(t, "Passw0rd", msg.Password)
		assert.Equal(t, "Juan", msg.FirstName)
	case <-time.After(2 * time.Second):
		t.Fatal("account email not sent")
	}

	logs := f.logs.byCollection(models.CollectionUserManagement)
	require.Len(t, logs, 1)
	assert.Equal(t, f.admin.ID.String(), logs[0].UserID)
	assert.Equal(t, u.ID.String(), logs[0].Meta["targetUserId"])
}

func TestCreateAccountPasswordMismatch(t *testing.T) {
	f := newAccountFixture(t)
	in := CreateAccountInput{SignUpInput: signUpInput(), ConfirmPassword: "Different1", Role: models.RoleUser}
	_, err := f.svc.CreateAccount(context.Background(), f.adminIdentity(), in)
	require.Error(t, err)
	assert.Contains(t, apperr.FieldsOf(err), "confirm_password")
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, f.admin.ID, ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "N3wPassword"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	err = f.svc.ChangePassword(ctx, f.admin.ID, ChangePasswordInput{CurrentPassword: "Adm1nPass", NewPassword: "Adm1nPass"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, f.svc.ChangePassword(ctx, f.admin.ID, ChangePasswordInput{CurrentPassword: "Adm1nPass", NewPassword: "N3wPassword"}))
	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "N3wPassword"})
	assert.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@tsiken.ph"))
	assert.Empty(t, f.mailer.resets)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, f.admin.Email))
	msg := <-f.mailer.resets
	require.NotEmpty(t, msg.Token)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordInput{Token: msg.Token, NewPassword: "Rec0vered1"}))
	_, err := f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Rec0vered1"})
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, ResetPasswordInput{Token: msg.Token, NewPassword: "Rec0vered2"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "tokens are single-use")
}

func TestAdminCannotTargetSelf(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	me := f.adminIdentity()

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(f.svc.SetRole(ctx, me, f.admin.ID, models.RoleUser)))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(f.svc.SetLocked(ctx, me, f.admin.ID, true)))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(f.svc.DeleteUser(ctx, me, f.admin.ID)))
}

func TestSetRoleLockAndDelete(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	res, err := f.svc.SignUp(ctx, signUpInput())
	require.NoError(t, err)
	id := res.User.ID

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(f.svc.SetRole(ctx, f.adminIdentity(), id, "root")))
	require.NoError(t, f.svc.SetRole(ctx, f.adminIdentity(), id, models.RoleAdmin))
	require.NoError(t, f.svc.SetLocked(ctx, f.adminIdentity(), id, true))
	require.NoError(t, f.svc.DeleteUser(ctx, f.adminIdentity(), id))

	_, err = f.svc.GetProfile(ctx, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	actions := []string{}
	for _, r := range f.logs.byCollection(models.CollectionUserManagement) {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{"Change Role", "Lock Account", "Delete Account"}, actions)
}

func TestUpdateProfileMobileConflict(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	res, err := f.svc.SignUp(ctx, signUpInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, res.User.ID, UpdateProfileInput{
		FirstName: "Juan", LastName: "Cruz", MobileNumber: f.admin.MobileNumber,
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	u, err := f.svc.UpdateProfile(ctx, res.User.ID, UpdateProfileInput{
		FirstName: "Juan", LastName: "Cruz", MobileNumber: "09179999999",
	})
	require.NoError(t, err)
	assert.Equal(t, "Cruz", u.LastName)
}

func TestCreateAccountMailBoundToServiceLifetime(t *testing.T) {
	lifetime, cancel := context.WithCancel(context.Background())
	f := newAccountFixtureCtx(t, lifetime)
	cancel()

	in := CreateAccountInput{SignUpInput: signUpInput(), ConfirmPassword: "Passw0rd", Role: models.RoleUser}
	_, err := f.svc.CreateAccount(context.Background(), f.adminIdentity(), in)
	require.NoError(t, err)

	<-f.mailer.accounts
	f.svc.Wait()
	f.mailer.mu.Lock()
	defer f.mailer.mu.Unlock()
	assert.ErrorIs(t, f.mailer.ctxErr, context.Canceled)
}

func TestSignInLocksDeviceAfterFailures(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	bad := SignInInput{Email: f.admin.Email, Password: "wrong", DeviceID: "phone"}

	for i := 1; i < 5; i++ {
		_, err := f.svc.SignIn(ctx, bad)
		require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), "attempt %d", i)
	}
	_, err := f.svc.SignIn(ctx, bad)
	require.Equal(t, apperr.KindTooManyRequests, apperr.KindOf(err), "fifth failure locks the device")

	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "phone"})
	assert.Equal(t, apperr.KindTooManyRequests, apperr.KindOf(err), "locked even with the right password")
	assert.Contains(t, err.Error(), "Try again in 01:00:00")

	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "tablet"})
	assert.NoError(t, err, "other devices are not affected")

	f.mr.FastForward(time.Hour + time.Second)
	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "phone"})
	assert.NoError(t, err)
}

func TestSignInSuccessResetsAttempts(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	fail := func(n int) {
		for i := 0; i < n; i++ {
			_, err := f.svc.SignIn(ctx, SignInInput{Email: "ghost@tsiken.ph", Password: "nope"})
			require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		}
	}
	// without a device id the email is the subject
	fail(4)
	assert.Equal(t, "4", mustGet(t, f.mr, "lockout_attempts:login:email:ghost@tsiken.ph"))

	_, err := f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "phone"})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "wrong", DeviceID: "phone"})
		require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	}
	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "phone"})
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("lockout_attempts:login:phone"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestResetPasswordLocksClient(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, f.admin.Email))
	msg := <-f.mailer.resets

	for i := 1; i <= 5; i++ {
		err := f.svc.ResetPassword(ctx, ResetPasswordInput{Token: fmt.Sprintf("guess-%d", i), NewPassword: "Rec0vered1", Client: "dev-7"})
		if i < 5 {
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		} else {
			require.Equal(t, apperr.KindTooManyRequests, apperr.KindOf(err))
		}
	}

	err := f.svc.ResetPassword(ctx, ResetPasswordInput{Token: msg.Token, NewPassword: "Rec0vered1", Client: "dev-7"})
	assert.Equal(t, apperr.KindTooManyRequests, apperr.KindOf(err))
	assert.True(t, f.mr.Exists(resetKeyPrefix+msg.Token), "a locked client does not consume the token")

	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordInput{Token: msg.Token, NewPassword: "Rec0vered1", Client: "dev-8"}))
}

func TestCurrentAccountIsCachedAndDropped(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	res, err := f.svc.SignUp(ctx, signUpInput())
	require.NoError(t, err)
	id := res.User.ID

	st, err := f.svc.CurrentAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, st.Role)
	assert.True(t, f.mr.Exists(accountStatusPrefix+id.String()))

	// a write that bypasses the service is not seen until the cache expires
	require.NoError(t, f.users.UpdateRole(ctx, id, models.RoleAdmin))
	st, err = f.svc.CurrentAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, st.Role)
	f.mr.FastForward(accountStatusTTL + time.Second)
	st, err = f.svc.CurrentAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, st.Role)

	require.NoError(t, f.svc.SetLocked(ctx, f.adminIdentity(), id, true))
	st, err = f.svc.CurrentAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.Locked)

	require.NoError(t, f.svc.DeleteUser(ctx, f.adminIdentity(), id))
	_, err = f.svc.CurrentAccount(ctx, id)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestDemotionRevokesAdminSessions(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	in := CreateAccountInput{SignUpInput: signUpInput(), ConfirmPassword: "Passw0rd", Role: models.RoleAdmin}
	u, err := f.svc.CreateAccount(ctx, f.adminIdentity(), in)
	require.NoError(t, err)
	<-f.mailer.accounts

	for _, dev := range []string{"phone", "tablet"} {
		res, err := f.svc.SignIn(ctx, SignInInput{Email: u.Email, Password: "Passw0rd", DeviceID: dev})
		require.NoError(t, err)
		require.True(t, res.AdminSession)
	}
	_, err = f.svc.SignIn(ctx, SignInInput{Email: f.admin.Email, Password: "Adm1nPass", DeviceID: "desk"})
	require.NoError(t, err)

	require.NoError(t, f.svc.SetRole(ctx, f.adminIdentity(), u.ID, models.RoleUser))
	assert.False(t, f.mr.Exists("admin_session:phone"))
	assert.False(t, f.mr.Exists("admin_session:tablet"))
	assert.True(t, f.mr.Exists("admin_session:desk"))

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.NotEmpty(t, f.pub.events)
	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, events.EventAccountRevoked, last.Type)
	assert.Equal(t, u.ID.String(), last.Payload["user_id"])
	assert.Equal(t, "role_changed", last.Payload["reason"])
}
