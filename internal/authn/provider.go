package authn

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Provider is the credential/identity contract the data controller delegates
// to. Implementations report failures as errors whose messages are suitable
// for direct display to the user.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (identity string, err error)
	CreateUser(ctx context.Context, email, password string) (identity string, err error)
	SignOut(identity string) error
	// SendPasswordReset is fire-and-forget: callers get no confirmation and
	// show a static message regardless of outcome.
	SendPasswordReset(email string)
	DeleteUser(identity string) error
}

const (
	minPasswordLength = 6
	resetTokenTTL     = time.Hour
)

// ResetMailer sends a password-reset token to an email address.
type ResetMailer interface {
	SendPasswordReset(toEmail, token string) error
}

// LocalProvider stores bcrypt-hashed credentials in SQLite and issues opaque
// UUID identities.
type LocalProvider struct {
	db     *sql.DB
	mailer ResetMailer
	logger *slog.Logger
}

func NewLocalProvider(db *sql.DB, mailer ResetMailer, logger *slog.Logger) *LocalProvider {
	return &LocalProvider{db: db, mailer: mailer, logger: logger}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)

	var identity, hash string
	err := p.db.QueryRowContext(ctx,
		`SELECT identity, password_hash FROM credentials WHERE email = ?`,
		email,
	).Scan(&identity, &hash)
	if err == sql.ErrNoRows {
		return "", errors.New("The email or password is incorrect.")
	}
	if err != nil {
		p.logger.Error("sign in lookup", "error", err)
		return "", errors.New("Something went wrong signing you in. Please try again.")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", errors.New("The email or password is incorrect.")
	}
	return identity, nil
}

func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("The password must be at least %d characters long.", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		p.logger.Error("hash password", "error", err)
		return "", errors.New("Something went wrong creating your account. Please try again.")
	}

	identity := uuid.NewString()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO credentials (identity, email, password_hash) VALUES (?, ?, ?)`,
		identity, email, string(hash),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", errors.New("An account with that email already exists.")
		}
		p.logger.Error("insert credentials", "error", err)
		return "", errors.New("Something went wrong creating your account. Please try again.")
	}
	return identity, nil
}

// SignOut has no server-side credential state to discard; sessions are the
// caller's concern.
func (p *LocalProvider) SignOut(identity string) error {
	return nil
}

func (p *LocalProvider) SendPasswordReset(email string) {
	email = normalizeEmail(email)

	go func() {
		var identity string
		err := p.db.QueryRow(
			`SELECT identity FROM credentials WHERE email = ?`,
			email,
		).Scan(&identity)
		if err == sql.ErrNoRows {
			// Unknown address: stay silent to avoid account enumeration.
			return
		}
		if err != nil {
			p.logger.Error("password reset lookup", "error", err)
			return
		}

		token, err := randomToken()
		if err != nil {
			p.logger.Error("password reset token", "error", err)
			return
		}

		expires := time.Now().UTC().Add(resetTokenTTL)
		if _, err := p.db.Exec(
			`INSERT INTO password_resets (identity, token, expires_at) VALUES (?, ?, ?)`,
			identity, token, expires,
		); err != nil {
			p.logger.Error("store password reset", "error", err)
			return
		}

		if p.mailer == nil {
			p.logger.Warn("password reset requested but no mailer configured", "email", email)
			return
		}
		if err := p.mailer.SendPasswordReset(email, token); err != nil {
			p.logger.Error("send password reset", "error", err)
		}
	}()
}

// ConfirmPasswordReset redeems a reset token and replaces the password.
func (p *LocalProvider) ConfirmPasswordReset(token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("The password must be at least %d characters long.", minPasswordLength)
	}

	var id int64
	var identity string
	var expires time.Time
	err := p.db.QueryRow(
		`SELECT id, identity, expires_at FROM password_resets WHERE token = ? AND used = 0`,
		token,
	).Scan(&id, &identity, &expires)
	if err == sql.ErrNoRows {
		return errors.New("This reset link is invalid or has already been used.")
	}
	if err != nil {
		return fmt.Errorf("lookup reset token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		return errors.New("This reset link has expired. Please request a new one.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := p.db.Exec(
		`UPDATE credentials SET password_hash = ? WHERE identity = ?`,
		string(hash), identity,
	); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := p.db.Exec(`UPDATE password_resets SET used = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

func (p *LocalProvider) DeleteUser(identity string) error {
	if _, err := p.db.Exec(`DELETE FROM credentials WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
