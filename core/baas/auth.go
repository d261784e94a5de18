package baas

import (
	"context"
	"net/http"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/user"
)

// Verification types
const (
	VerifyRecovery = "recovery"
)

var (
	NowFunc = time.Now // mockable

	errInvalidCredentials = backend.NewError(http.StatusBadRequest, backend.CodeInvalidCredentials, "Invalid login credentials")
	errUserExists         = backend.NewError(http.StatusUnprocessableEntity, backend.CodeUserExists, "User already registered")
	errInvalidJWT         = backend.NewError(http.StatusUnauthorized, backend.CodeBadJWT, "invalid JWT: unable to parse or verify signature")
	errRevokedJWT         = backend.NewError(http.StatusUnauthorized, backend.CodeBadJWT, "invalid JWT: session has been revoked")
	errUserFromJWTMissing = backend.NewError(http.StatusForbidden, "user_not_found", "User from sub claim in JWT does not exist")
	errOTPExpired         = backend.NewError(http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
	errUnknownVerifyType  = backend.NewError(http.StatusBadRequest, backend.CodeValidationFailed, "Verify requires a verification type")
	errEmailRequired      = backend.NewError(http.StatusBadRequest, backend.CodeValidationFailed, "An email address is required")
)

// AuthService manages accounts and their sessions.
type AuthService struct {
	conf       *core.Config
	users      UserRepository
	tokens     TokenRepository
	mailer     core.EmailService
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
	resetGen   user.TokenGenerator
	signingKey []byte
}

func NewAuthService(
	conf *core.Config,
	users UserRepository,
	tokens TokenRepository,
	mailer core.EmailService,
	logger core.Logger,
) *AuthService {
	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator, user.PasswordPolicy{Strict: conf.Emulator.StrictPasswords})
	return &AuthService{
		conf:       conf,
		users:      users,
		tokens:     tokens,
		mailer:     mailer,
		logger:     logger,
		validate:   validate,
		translator: translator,
		resetGen:   user.NewTokenGenerator(conf.Emulator.SecretKey, conf.Emulator.PasswordResetTimeoutDelta),
		signingKey: []byte(conf.Emulator.SecretKey),
	}
}

// SignUp creates a confirmed teacher account and sends a welcome email.
func (svc *AuthService) SignUp(ctx context.Context, nu user.NewUser) (user.User, error) {
	role := nu.Role
	nu.Clean()
	if role != "" {
		nu.Role = role
	}
	if err := svc.validateStruct(nu); err != nil {
		return user.User{}, err
	}

	if _, err := svc.users.GetUserByEmail(ctx, nu.Email); err == nil {
		return user.User{}, errUserExists
	} else if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, errors.Wrap(err, "checking email uniqueness")
	}

	pwdHash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}

	now := NowFunc().UTC()
	acc := Account{
		User: user.User{
			ID:        newID(),
			Email:     nu.Email,
			Name:      nu.Name,
			Phone:     nu.Phone,
			Role:      nu.Role,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: pwdHash,
	}
	if err = svc.users.CreateUser(ctx, acc); err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return user.User{}, errUserExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}

	svc.sendEmail("Welcome", "signup_confirmation", acc.User, "")
	return acc.User, nil
}

// SignIn checks the credentials and opens a new session.
func (svc *AuthService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	acc, err := svc.users.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return svc.openSession(ctx, acc)
}

func (svc *AuthService) openSession(ctx context.Context, acc Account) (*backend.Session, error) {
	now := NowFunc().UTC()
	acc.User.LastSignInAt = now
	if err := svc.users.UpdateUser(ctx, acc); err != nil {
		return nil, errors.Wrap(err, "setting last sign in")
	}

	ttl := svc.conf.Emulator.JWTExpirationDelta
	claims := newClaims(acc.User, svc.conf.Emulator.PublicURL+"/auth/v1", now, ttl)
	token, err := generateToken(claims, svc.signingKey)
	if err != nil {
		return nil, err
	}
	return &backend.Session{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresIn:    int(ttl.Seconds()),
		ExpiresAt:    claims.ExpiresAt.Unix(),
		RefreshToken: claims.ID,
		User:         acc.User,
	}, nil
}

// Authenticate returns the claims and principal of a valid, unrevoked access token.
func (svc *AuthService) Authenticate(ctx context.Context, token string) (*Claims, user.User, error) {
	claims, err := parseToken(token, svc.signingKey, NowFunc())
	if err != nil {
		return nil, user.User{}, err
	}
	revoked, err := svc.tokens.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, user.User{}, errors.Wrap(err, "checking token revocation")
	}
	if revoked {
		return nil, user.User{}, errRevokedJWT
	}
	acc, err := svc.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.User{}, errUserFromJWTMissing
		}
		return nil, user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return claims, acc.User, nil
}

// Session rebuilds the session of a valid access token.
func (svc *AuthService) Session(ctx context.Context, token string) (*backend.Session, error) {
	claims, usr, err := svc.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &backend.Session{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresIn:    int(time.Until(claims.ExpiresAt.Time).Seconds()),
		ExpiresAt:    claims.ExpiresAt.Unix(),
		RefreshToken: claims.ID,
		User:         usr,
	}, nil
}

// SignOut revokes the session of claims.
func (svc *AuthService) SignOut(ctx context.Context, claims *Claims) error {
	if err := svc.tokens.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return nil
}

func (svc *AuthService) GetUser(ctx context.Context, id string) (user.User, error) {
	acc, err := svc.users.GetUserByID(ctx, id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return acc.User, nil
}

// UpdateUser applies attrs to the account of id. A new password goes through the password policy.
func (svc *AuthService) UpdateUser(ctx context.Context, id string, attrs user.Attributes) (user.User, error) {
	attrs.Email = core.CleanStringPtr(attrs.Email, true /* lower */)
	attrs.Name = core.CleanStringPtr(attrs.Name)
	attrs.Phone = core.CleanStringPtr(attrs.Phone)

	acc, err := svc.users.GetUserByID(ctx, id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}

	// similarity checks need the attributes the password is not given with
	check := attrs
	if check.Name == nil && acc.User.Name != "" {
		check.Name = &acc.User.Name
	}
	if check.Email == nil {
		check.Email = &acc.User.Email
	}
	if err = svc.validateStruct(check); err != nil {
		return user.User{}, err
	}

	if attrs.Email != nil && *attrs.Email != acc.User.Email {
		if _, err = svc.users.GetUserByEmail(ctx, *attrs.Email); err == nil {
			return user.User{}, errUserExists
		} else if !errors.Is(err, user.ErrNotFound) {
			return user.User{}, errors.Wrap(err, "checking email uniqueness")
		}
	}
	if attrs.Password != nil {
		if acc.PasswordHash, err = bcrypt.GenerateFromPassword([]byte(*attrs.Password), bcrypt.DefaultCost); err != nil {
			return user.User{}, errors.Wrap(err, "hashing password")
		}
	}

	acc.User = attrs.Apply(acc.User)
	acc.User.UpdatedAt = NowFunc().UTC()
	if err = svc.users.UpdateUser(ctx, acc); err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			return user.User{}, errUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return acc.User, nil
}

// Recover emails a password reset token. Unknown emails are silently ignored.
func (svc *AuthService) Recover(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return errEmailRequired
	}
	acc, err := svc.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	token, err := svc.resetGen.MakeToken(acc.User, acc.PasswordHash)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	svc.sendEmail("Password Reset", "password_reset", acc.User, token)
	return nil
}

// Verify exchanges a recovery token for a session.
func (svc *AuthService) Verify(ctx context.Context, typ, email, token string) (*backend.Session, error) {
	if typ != VerifyRecovery {
		return nil, errUnknownVerifyType
	}
	acc, err := svc.users.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errOTPExpired
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = svc.resetGen.VerifyToken(acc.User, acc.PasswordHash, token); err != nil {
		return nil, errOTPExpired
	}
	return svc.openSession(ctx, acc)
}

// PurgeRevokedTokens drops revocations of tokens that expired anyway.
func (svc *AuthService) PurgeRevokedTokens(ctx context.Context) (int, error) {
	n, err := svc.tokens.PurgeRevokedTokens(ctx, NowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "purging revoked tokens")
	}
	return n, nil
}

func (svc *AuthService) validateStruct(s interface{}) error {
	err := core.TranslateErrors(svc.validate.Struct(s), svc.translator)
	if err == nil {
		return nil
	}
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		return errors.Wrap(err, "validating input")
	}
	code := backend.CodeValidationFailed
	for _, fe := range vErr.Fields {
		if fe.Field == "password" {
			code = backend.CodeWeakPassword
			break
		}
	}
	return backend.NewError(http.StatusUnprocessableEntity, code, vErr.Error())
}

type emailData struct {
	Name      string
	Email     string
	Token     string
	ValidDays int
}

func (svc *AuthService) sendEmail(subject, tmpl string, usr user.User, token string) {
	if svc.mailer == nil {
		return
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: emailData{
			Name:      usr.Name,
			Email:     usr.Email,
			Token:     token,
			ValidDays: int(svc.conf.Emulator.PasswordResetTimeoutDelta / (24 * time.Hour)),
		},
	})
}
