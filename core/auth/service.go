package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mdip/config"
	"mdip/core/store"
	"mdip/core/utils"

	"github.com/pquerna/otp/totp"
)

// Service is the only component that sees plaintext passwords. It writes every password
// hash and decides every role check the rest of the platform relies on.
type Service struct {
	users  store.UsersStore
	audits store.AuditStore
	authz  *Authorizer
	cfg    config.AuthConfig
	logger *utils.Logger
	now    func() time.Time

	// dummyHash is compared against when the username is unknown so both paths cost one bcrypt.
	dummyHash string
}

type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func NewService(users store.UsersStore, audits store.AuditStore, authz *Authorizer, cfg *config.AppConfig, logger *utils.Logger) (*Service, error) {
	if authz == nil {
		var err error
		if authz, err = NewAuthorizer(); err != nil {
			return nil, err
		}
	}
	seed, err := utils.RandString(24)
	if err != nil {
		return nil, err
	}
	dummy, err := HashPassword(seed, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Service{
		users:     users,
		audits:    audits,
		authz:     authz,
		cfg:       cfg.Auth,
		logger:    logger,
		now:       utils.NowUTC,
		dummyHash: dummy,
	}, nil
}

// SystemActor is the admin identity used by the CLI and bootstrap code.
func SystemActor() *store.User {
	return &store.User{ID: 0, Username: "system", Role: string(RoleAdmin)}
}

func (s *Service) Authorize(user *store.User, required Role) bool {
	if user == nil {
		return false
	}
	return s.authz.Allowed(Role(user.Role), required)
}

func (s *Service) AuthorizeAny(user *store.User, roles ...Role) bool {
	for _, r := range roles {
		if s.Authorize(user, r) {
			return true
		}
	}
	return false
}

// Register creates an account. A nil actor is anonymous self-registration, which may only
// request the default role. Any other role needs an admin actor.
func (s *Service) Register(ctx context.Context, actor *store.User, username, password, role string) (int64, error) {
	name := utils.NormalizeUsername(username)
	if err := utils.ValidateUsername(name); err != nil {
		return 0, err
	}
	if err := utils.ValidatePassword(password); err != nil {
		return 0, err
	}
	r := RoleUser
	if strings.TrimSpace(role) != "" {
		parsed, err := ParseRole(role)
		if err != nil {
			return 0, err
		}
		r = parsed
	}
	isAdmin := s.Authorize(actor, RoleAdmin)
	if !isAdmin {
		if !s.cfg.AllowSelfRegistration {
			return 0, ErrRegistrationClosed
		}
		if r != RoleUser {
			return 0, ErrForbidden
		}
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return 0, err
	}
	id, err := s.users.Create(ctx, name, hash, string(r))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return 0, ErrUsernameTaken
		}
		return 0, storeErr(err)
	}
	by := name
	if actor != nil {
		by = actor.Username
	}
	s.auditEntity(ctx, by, "user.created", id, fmt.Sprintf("%s role=%s", name, r))
	s.logger.Printf("user registered id=%d username=%s role=%s", id, name, r)
	return id, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*store.User, error) {
	return s.LoginWithCode(ctx, username, password, "")
}

// LoginWithCode verifies credentials and, for accounts with TOTP enabled, the one-time code.
// Unknown users, wrong passwords and locked accounts all yield ErrInvalidCredentials.
func (s *Service) LoginWithCode(ctx context.Context, username, password, code string) (*store.User, error) {
	name := utils.NormalizeUsername(username)
	u, err := s.users.FindByUsername(ctx, name)
	if err != nil {
		return nil, storeErr(err)
	}
	if u == nil {
		VerifyPassword(password, s.dummyHash)
		s.audit(ctx, name, "auth.login_failed", "unknown user")
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	if s.cfg.Lockout.Enabled && u.IsLocked(now) {
		VerifyPassword(password, s.dummyHash)
		s.audit(ctx, u.Username, "auth.login_blocked", "locked until "+u.LockedUntil.UTC().Format(time.RFC3339))
		return nil, ErrInvalidCredentials
	}
	if !VerifyPassword(password, u.PasswordHash) {
		s.recordFailure(ctx, u, now)
		s.audit(ctx, u.Username, "auth.login_failed", "invalid password")
		return nil, ErrInvalidCredentials
	}
	if u.TOTPEnabled {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, ErrTOTPRequired
		}
		ok, err := s.spendTOTPCode(ctx, u, code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.recordFailure(ctx, u, now)
			s.audit(ctx, u.Username, "auth.login_failed", "invalid one-time code")
			return nil, ErrTOTPInvalid
		}
	}
	if NeedsRehash(u.PasswordHash, s.cfg.BcryptCost) {
		s.rehash(ctx, u, password)
	}
	if err := s.users.RecordLoginSuccess(ctx, u.ID); err != nil {
		s.logger.Warnf("record login success user=%s: %v", u.Username, err)
	} else {
		u.FailedAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
	}
	s.audit(ctx, u.Username, "auth.login_success", "")
	return u, nil
}

func (s *Service) rehash(ctx context.Context, u *store.User, password string) {
	from := DetectHashFormat(u.PasswordHash)
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		s.logger.Warnf("rehash user=%s: %v", u.Username, err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		s.logger.Warnf("rehash user=%s: %v", u.Username, err)
		return
	}
	u.PasswordHash = hash
	s.auditEntity(ctx, u.Username, "auth.password_rehashed", u.ID, "from="+from.String())
}

func (s *Service) recordFailure(ctx context.Context, u *store.User, now time.Time) {
	restart := u.LockedUntil != nil && !u.IsLocked(now)
	lockAfter := 0
	if s.cfg.Lockout.Enabled {
		lockAfter = s.cfg.Lockout.MaxAttempts
	}
	attempts, err := s.users.RecordLoginFailure(ctx, u.ID, restart, lockAfter, now.Add(s.cfg.Lockout.Cooldown))
	if err != nil {
		s.logger.Warnf("record login failure user=%s: %v", u.Username, err)
		return
	}
	if lockAfter > 0 && attempts >= lockAfter {
		s.audit(ctx, u.Username, "auth.lockout", fmt.Sprintf("attempts=%d cooldown=%s", attempts, s.cfg.Lockout.Cooldown))
	}
}

// ChangePassword replaces the hash only after the current password verifies.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(oldPassword, u.PasswordHash) {
		s.auditEntity(ctx, u.Username, "auth.password_change_failed", u.ID, "current password mismatch")
		return ErrVerificationFailed
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, u.Username, "auth.password_changed", u.ID, "")
	return nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, actor *store.User) ([]store.User, error) {
	if !s.Authorize(actor, RoleAdmin) {
		return nil, ErrForbidden
	}
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

func (s *Service) SetRole(ctx context.Context, actor *store.User, userID int64, role string) error {
	if !s.Authorize(actor, RoleAdmin) {
		return ErrForbidden
	}
	r, err := ParseRole(role)
	if err != nil {
		return err
	}
	target, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role == string(r) {
		return nil
	}
	if target.Role == string(RoleAdmin) {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.users.UpdateRole(ctx, userID, string(r)); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, actor.Username, "user.role_changed", userID, fmt.Sprintf("%s: %s -> %s", target.Username, target.Role, r))
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, actor *store.User, userID int64) error {
	if !s.Authorize(actor, RoleAdmin) {
		return ErrForbidden
	}
	if actor.ID == userID {
		return ErrSelfDelete
	}
	target, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role == string(RoleAdmin) {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, actor.Username, "user.deleted", userID, target.Username)
	return nil
}

func (s *Service) UnlockUser(ctx context.Context, actor *store.User, userID int64) error {
	if !s.Authorize(actor, RoleAdmin) {
		return ErrForbidden
	}
	if err := s.users.Unlock(ctx, userID); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, actor.Username, "user.unlocked", userID, "")
	return nil
}

// EnrollTOTP stores a fresh secret that stays inactive until ConfirmTOTP succeeds.
func (s *Service) EnrollTOTP(ctx context.Context, userID int64) (*TOTPEnrollment, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.cfg.TOTPIssuer, AccountName: u.Username})
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}
	if err := s.users.SetTOTP(ctx, u.ID, key.Secret(), false); err != nil {
		return nil, mapStoreErr(err)
	}
	s.auditEntity(ctx, u.Username, "auth.totp_enrolled", u.ID, "")
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *Service) ConfirmTOTP(ctx context.Context, userID int64, code string) error {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if u.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	ok, err := s.spendTOTPCode(ctx, u, strings.TrimSpace(code), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrTOTPInvalid
	}
	if err := s.users.SetTOTP(ctx, u.ID, u.TOTPSecret, true); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, u.Username, "auth.totp_enabled", u.ID, "")
	return nil
}

// spendTOTPCode accepts code at most once: the matched time step is claimed in the store, and
// a code from an already claimed step is rejected even inside its validity window.
func (s *Service) spendTOTPCode(ctx context.Context, u *store.User, code string, now time.Time) (bool, error) {
	step, ok := matchTOTPStep(code, u.TOTPSecret, now, u.TOTPLastStep)
	if !ok {
		return false, nil
	}
	claimed, err := s.users.AdvanceTOTPStep(ctx, u.ID, step)
	if err != nil {
		return false, storeErr(err)
	}
	if claimed {
		u.TOTPLastStep = step
	}
	return claimed, nil
}

func (s *Service) DisableTOTP(ctx context.Context, userID int64, password string) error {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return ErrVerificationFailed
	}
	if err := s.users.SetTOTP(ctx, u.ID, "", false); err != nil {
		return mapStoreErr(err)
	}
	s.auditEntity(ctx, u.Username, "auth.totp_disabled", u.ID, "")
	return nil
}

// EnsureDefaultAdmin creates the "admin" account when no admin exists. The configured
// password is used when set, otherwise a random one is generated and returned once.
func (s *Service) EnsureDefaultAdmin(ctx context.Context) (password string, created bool, err error) {
	n, err := s.users.CountByRole(ctx, string(RoleAdmin))
	if err != nil {
		return "", false, storeErr(err)
	}
	if n > 0 {
		return "", false, nil
	}
	password = s.cfg.DefaultAdminPassword
	if password == "" {
		if password, err = utils.RandString(16); err != nil {
			return "", false, err
		}
	}
	if _, err := s.Register(ctx, SystemActor(), "admin", password, string(RoleAdmin)); err != nil {
		return "", false, fmt.Errorf("create default admin: %w", err)
	}
	s.logger.Printf("default admin account created")
	return password, true, nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context) error {
	n, err := s.users.CountByRole(ctx, string(RoleAdmin))
	if err != nil {
		return storeErr(err)
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return storeErr(err)
}

func (s *Service) audit(ctx context.Context, username, action, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, username, action, details); err != nil {
		s.logger.Warnf("audit %s: %v", action, err)
	}
}

func (s *Service) auditEntity(ctx context.Context, username, action string, userID int64, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.LogEntity(ctx, username, action, "user", userID, details); err != nil {
		s.logger.Warnf("audit %s: %v", action, err)
	}
}
