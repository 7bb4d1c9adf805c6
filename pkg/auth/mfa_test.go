package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/verigate/identity-core/pkg/cache"
	"github.com/verigate/identity-core/pkg/domain"
	"github.com/verigate/identity-core/pkg/ratelimit"
)

type mfaTestEnv struct {
	svc    *MFAService
	users  *fakeUserStore
	cache  *cache.MemoryCache
	mailer *fakeMailer
	sms    *fakeSMSSender
}

func newMFATestEnv(t *testing.T) *mfaTestEnv {
	t.Helper()
	env := &mfaTestEnv{
		users:  newFakeUserStore(),
		cache:  cache.NewMemoryCache(),
		mailer: &fakeMailer{},
		sms:    &fakeSMSSender{},
	}
	env.svc = NewMFAService(MFAConfig{
		Issuer:         "identity-core-test",
		SendCodePolicy: ratelimit.Policy{Interval: time.Minute, MaxRequests: 3},
	}, env.users, env.cache, ratelimit.NewMemoryLimiter(), env.mailer, env.sms)
	return env
}

func (env *mfaTestEnv) createUser(t *testing.T, mfa domain.MFASettings) *domain.User {
	t.Helper()
	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	now := time.Now()
	user := &domain.User{
		ID:            uuid.New(),
		Email:         uuid.NewString() + "@example.com",
		PasswordHash:  hash,
		EmailVerified: true,
		MFA:           mfa,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}
	return user
}

func TestMFAService_AuthenticatorEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{})

	setup, err := env.svc.BeginSetup(ctx, user.ID, domain.MFAMethodAuthenticator, "")
	if err != nil {
		t.Fatalf("BeginSetup failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("Setup returned no secret")
	}
	if !strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/") {
		t.Errorf("Unexpected enrollment URI: %q", setup.OTPAuthURL)
	}
	if !strings.HasPrefix(setup.QRCodeDataURI, "data:image/png;base64,") {
		t.Errorf("Unexpected QR data URI prefix: %.40q", setup.QRCodeDataURI)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}

	backupCodes, method, err := env.svc.ConfirmSetup(ctx, user.ID, code)
	if err != nil {
		t.Fatalf("ConfirmSetup failed: %v", err)
	}
	if method != domain.MFAMethodAuthenticator {
		t.Errorf("Method = %q, want %q", method, domain.MFAMethodAuthenticator)
	}
	if len(backupCodes) != backupCodeCount {
		t.Errorf("Got %d backup codes, want %d", len(backupCodes), backupCodeCount)
	}

	stored, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !stored.MFA.Enabled || !stored.MFA.Verified {
		t.Error("MFA should be enabled and verified after confirmation")
	}
	if stored.MFA.Secret == nil || *stored.MFA.Secret != setup.Secret {
		t.Error("Persisted secret does not match the staged secret")
	}

	// The staging key must not survive confirmation.
	var leftover string
	found, err := env.cache.Get(ctx, setupTOTPKeyPrefix+user.ID.String(), &leftover)
	if err != nil {
		t.Fatalf("cache.Get failed: %v", err)
	}
	if found {
		t.Error("Staged secret still present after confirmation")
	}
}

func TestMFAService_EmailEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{})

	setup, err := env.svc.BeginSetup(ctx, user.ID, domain.MFAMethodEmail, "")
	if err != nil {
		t.Fatalf("BeginSetup failed: %v", err)
	}
	if setup.Method != domain.MFAMethodEmail {
		t.Errorf("Method = %q, want %q", setup.Method, domain.MFAMethodEmail)
	}

	code := env.mailer.lastMFACode()
	if len(code) != 6 {
		t.Fatalf("Dispatched code %q is not 6 digits", code)
	}

	// A wrong code leaves enrollment awaiting confirmation.
	if _, _, err := env.svc.ConfirmSetup(ctx, user.ID, "000000"); !errors.Is(err, domain.ErrInvalidMFACode) {
		t.Fatalf("Wrong code error = %v, want ErrInvalidMFACode", err)
	}

	backupCodes, method, err := env.svc.ConfirmSetup(ctx, user.ID, code)
	if err != nil {
		t.Fatalf("ConfirmSetup failed: %v", err)
	}
	if method != domain.MFAMethodEmail {
		t.Errorf("Method = %q, want %q", method, domain.MFAMethodEmail)
	}
	if len(backupCodes) != backupCodeCount {
		t.Errorf("Got %d backup codes, want %d", len(backupCodes), backupCodeCount)
	}
	seen := make(map[string]bool)
	for _, c := range backupCodes {
		if seen[c] {
			t.Errorf("Duplicate backup code %q", c)
		}
		seen[c] = true
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if !stored.MFA.Enabled || stored.MFA.Method != domain.MFAMethodEmail {
		t.Errorf("Stored settings = %+v, want enabled email", stored.MFA)
	}
	if stored.MFA.Secret != nil {
		t.Error("Email method must not persist a TOTP secret")
	}
}

func TestMFAService_SMSEnrollment(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{})

	if _, err := env.svc.BeginSetup(ctx, user.ID, domain.MFAMethodSMS, ""); !errors.Is(err, domain.ErrPhoneNumberRequired) {
		t.Fatalf("Missing phone error = %v, want ErrPhoneNumberRequired", err)
	}

	if _, err := env.svc.BeginSetup(ctx, user.ID, domain.MFAMethodSMS, "+15551234567"); err != nil {
		t.Fatalf("BeginSetup failed: %v", err)
	}

	msg := env.sms.lastMessage()
	code := msg[strings.LastIndex(msg, " ")+1:]
	if len(code) != 6 {
		t.Fatalf("Dispatched code %q is not 6 digits", code)
	}

	_, method, err := env.svc.ConfirmSetup(ctx, user.ID, code)
	if err != nil {
		t.Fatalf("ConfirmSetup failed: %v", err)
	}
	if method != domain.MFAMethodSMS {
		t.Errorf("Method = %q, want %q", method, domain.MFAMethodSMS)
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if stored.MFA.PhoneNumber == nil || *stored.MFA.PhoneNumber != "+15551234567" {
		t.Error("Phone number was not persisted with the sms method")
	}
}

func TestMFAService_BeginSetupRejections(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	enabled := env.createUser(t, domain.MFASettings{Enabled: true, Method: domain.MFAMethodEmail, Verified: true})
	plain := env.createUser(t, domain.MFASettings{})

	tests := []struct {
		name    string
		userID  uuid.UUID
		method  domain.MFAMethod
		wantErr error
	}{
		{"already enabled", enabled.ID, domain.MFAMethodEmail, domain.ErrMFAAlreadyEnabled},
		{"unsupported method", plain.ID, domain.MFAMethod("carrier-pigeon"), domain.ErrUnsupportedMFAMethod},
		{"unknown user", uuid.New(), domain.MFAMethodEmail, domain.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.BeginSetup(ctx, tt.userID, tt.method, ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("BeginSetup error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMFAService_ConfirmSetupWithoutPending(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{})

	if _, _, err := env.svc.ConfirmSetup(ctx, user.ID, "123456"); !errors.Is(err, domain.ErrMFASetupNotFound) {
		t.Errorf("ConfirmSetup error = %v, want ErrMFASetupNotFound", err)
	}
}

func TestVerifyTOTP_SkewWindow(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "user@example.com"})
	if err != nil {
		t.Fatalf("totp.Generate failed: %v", err)
	}
	secret := key.Secret()

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current step", 0, true},
		{"one step behind", -30 * time.Second, true},
		{"one step ahead", 30 * time.Second, true},
		{"four steps behind", -120 * time.Second, false},
		{"four steps ahead", 120 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := totp.GenerateCode(secret, time.Now().Add(tt.offset))
			if err != nil {
				t.Fatalf("GenerateCode failed: %v", err)
			}
			if got := verifyTOTP(secret, code); got != tt.want {
				t.Errorf("verifyTOTP(code at %v) = %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestMFAService_EmailChallenge(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{
		Enabled:  true,
		Method:   domain.MFAMethodEmail,
		Verified: true,
	})

	if err := env.svc.SendChallengeCode(ctx, user.ID); err != nil {
		t.Fatalf("SendChallengeCode failed: %v", err)
	}
	code := env.mailer.lastMFACode()

	if _, err := env.svc.VerifyChallenge(ctx, user.ID, "000000", false); !errors.Is(err, domain.ErrInvalidMFACode) {
		t.Fatalf("Wrong code error = %v, want ErrInvalidMFACode", err)
	}

	result, err := env.svc.VerifyChallenge(ctx, user.ID, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if result.Method != domain.MFAMethodEmail || result.UsedBackupCode {
		t.Errorf("Result = %+v, want email method without backup code", result)
	}

	// Challenge codes are single-use.
	if _, err := env.svc.VerifyChallenge(ctx, user.ID, code, false); !errors.Is(err, domain.ErrInvalidMFACode) {
		t.Errorf("Replayed code error = %v, want ErrInvalidMFACode", err)
	}
}

func TestMFAService_AuthenticatorChallenge(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "user@example.com"})
	if err != nil {
		t.Fatalf("totp.Generate failed: %v", err)
	}
	secret := key.Secret()
	user := env.createUser(t, domain.MFASettings{
		Enabled:  true,
		Method:   domain.MFAMethodAuthenticator,
		Secret:   &secret,
		Verified: true,
	})

	if _, err := env.svc.VerifyChallenge(ctx, user.ID, "000000", false); !errors.Is(err, domain.ErrInvalidMFACode) {
		t.Fatalf("Wrong code error = %v, want ErrInvalidMFACode", err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	result, err := env.svc.VerifyChallenge(ctx, user.ID, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if result.Method != domain.MFAMethodAuthenticator || result.UsedBackupCode {
		t.Errorf("Result = %+v, want authenticator method without backup code", result)
	}
}

func TestMFAService_SendChallengeCodeRateLimit(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{
		Enabled:  true,
		Method:   domain.MFAMethodEmail,
		Verified: true,
	})

	for i := 0; i < 3; i++ {
		if err := env.svc.SendChallengeCode(ctx, user.ID); err != nil {
			t.Fatalf("Send %d failed: %v", i+1, err)
		}
	}
	if err := env.svc.SendChallengeCode(ctx, user.ID); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("Fourth send error = %v, want ErrRateLimited", err)
	}
}

func TestMFAService_SendChallengeCodeRejections(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	disabled := env.createUser(t, domain.MFASettings{})
	secret := "JBSWY3DPEHPK3PXP"
	authenticator := env.createUser(t, domain.MFASettings{
		Enabled:  true,
		Method:   domain.MFAMethodAuthenticator,
		Secret:   &secret,
		Verified: true,
	})

	if err := env.svc.SendChallengeCode(ctx, disabled.ID); !errors.Is(err, domain.ErrMFANotEnabled) {
		t.Errorf("Disabled user error = %v, want ErrMFANotEnabled", err)
	}
	// The authenticator method has nothing to dispatch.
	if err := env.svc.SendChallengeCode(ctx, authenticator.ID); !errors.Is(err, domain.ErrUnsupportedMFAMethod) {
		t.Errorf("Authenticator dispatch error = %v, want ErrUnsupportedMFAMethod", err)
	}
}

func TestMFAService_BackupCodeChallenge(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{
		Enabled:     true,
		Method:      domain.MFAMethodEmail,
		BackupCodes: []string{"AAAA1111", "BBBB2222"},
		Verified:    true,
	})

	// Lowercase input matches the stored uppercase code.
	result, err := env.svc.VerifyChallenge(ctx, user.ID, " aaaa1111 ", true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if !result.UsedBackupCode {
		t.Error("Result should report backup-code use")
	}

	// The code is consumed.
	if _, err := env.svc.VerifyChallenge(ctx, user.ID, "AAAA1111", true); !errors.Is(err, domain.ErrInvalidMFACode) {
		t.Errorf("Replayed backup code error = %v, want ErrInvalidMFACode", err)
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if len(stored.MFA.BackupCodes) != 1 || stored.MFA.BackupCodes[0] != "BBBB2222" {
		t.Errorf("Remaining codes = %v, want [BBBB2222]", stored.MFA.BackupCodes)
	}
}

func TestMFAService_BackupCodeExhausted(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{
		Enabled:  true,
		Method:   domain.MFAMethodEmail,
		Verified: true,
	})

	if _, err := env.svc.VerifyChallenge(ctx, user.ID, "AAAA1111", true); !errors.Is(err, domain.ErrNoBackupCodesAvailable) {
		t.Errorf("Empty set error = %v, want ErrNoBackupCodesAvailable", err)
	}
}

func TestMFAService_BackupCodeConcurrentConsumption(t *testing.T) {
	// Two concurrent redemptions of the same backup code must not both
	// succeed: removal and the success decision are one atomic operation.
	ctx := context.Background()
	env := newMFATestEnv(t)
	user := env.createUser(t, domain.MFASettings{
		Enabled:     true,
		Method:      domain.MFAMethodEmail,
		BackupCodes: []string{"CCCC3333"},
		Verified:    true,
	})

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.VerifyChallenge(ctx, user.ID, "CCCC3333", true)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInvalidMFACode), errors.Is(err, domain.ErrNoBackupCodesAvailable):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Got %d successful redemptions, want exactly 1", successes)
	}
}

func TestMFAService_Disable(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	secret := "JBSWY3DPEHPK3PXP"
	user := env.createUser(t, domain.MFASettings{
		Enabled:     true,
		Method:      domain.MFAMethodAuthenticator,
		Secret:      &secret,
		BackupCodes: []string{"AAAA1111"},
		Verified:    true,
	})

	if err := env.svc.Disable(ctx, user.ID, "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("Wrong password error = %v, want ErrInvalidCredentials", err)
	}

	if err := env.svc.Disable(ctx, user.ID, "correct-password"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if stored.MFA.Enabled || stored.MFA.Secret != nil || len(stored.MFA.BackupCodes) != 0 {
		t.Errorf("Settings after disable = %+v, want zero value", stored.MFA)
	}

	if err := env.svc.Disable(ctx, user.ID, "correct-password"); !errors.Is(err, domain.ErrMFANotEnabled) {
		t.Errorf("Disable when off error = %v, want ErrMFANotEnabled", err)
	}
}

func TestMFAService_Status(t *testing.T) {
	ctx := context.Background()
	env := newMFATestEnv(t)
	off := env.createUser(t, domain.MFASettings{})
	on := env.createUser(t, domain.MFASettings{
		Enabled:     true,
		Method:      domain.MFAMethodEmail,
		BackupCodes: []string{"AAAA1111", "BBBB2222", "CCCC3333"},
		Verified:    true,
	})

	enabled, method, remaining, err := env.svc.Status(ctx, off.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if enabled || method != domain.MFAMethodNone || remaining != 0 {
		t.Errorf("Status(off) = %v %q %d, want false none 0", enabled, method, remaining)
	}

	enabled, method, remaining, err = env.svc.Status(ctx, on.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !enabled || method != domain.MFAMethodEmail || remaining != 3 {
		t.Errorf("Status(on) = %v %q %d, want true email 3", enabled, method, remaining)
	}
}
