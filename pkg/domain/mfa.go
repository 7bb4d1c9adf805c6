package domain

// MFAMethod represents the type of MFA method
type MFAMethod string

const (
	// MFAMethodAuthenticator represents Time-based One-Time Password authentication
	MFAMethodAuthenticator MFAMethod = "authenticator"
	// MFAMethodEmail represents emailed one-time codes
	MFAMethodEmail MFAMethod = "email"
	// MFAMethodSMS represents SMS-delivered one-time codes
	MFAMethodSMS MFAMethod = "sms"
	// MFAMethodNone means no method is configured
	MFAMethodNone MFAMethod = ""
)

// MFASettings holds a user's persisted multi-factor configuration.
// Secret is only set for the authenticator method, PhoneNumber only for sms.
type MFASettings struct {
	Enabled     bool
	Method      MFAMethod
	Secret      *string
	PhoneNumber *string
	BackupCodes []string
	Verified    bool
}

// Validate checks the structural invariant: an enabled configuration must
// name a method, and the authenticator method must carry a secret.
func (m *MFASettings) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Method == MFAMethodNone {
		return ErrInvalidMFASettings
	}
	if m.Method == MFAMethodAuthenticator && (m.Secret == nil || *m.Secret == "") {
		return ErrInvalidMFASettings
	}
	if m.Method == MFAMethodSMS && (m.PhoneNumber == nil || *m.PhoneNumber == "") {
		return ErrInvalidMFASettings
	}
	return nil
}

// MFASetupData contains data returned when beginning authenticator enrollment
type MFASetupData struct {
	Method        MFAMethod
	Secret        string // Base32 TOTP secret (for manual entry)
	OTPAuthURL    string // otpauth:// enrollment URI
	QRCodeDataURI string // QR code as data:image/png;base64,...
}

// MFAChallengeResult reports the outcome of a login-time challenge.
// It carries no session material; session issuance is the caller's concern.
type MFAChallengeResult struct {
	Method         MFAMethod
	UsedBackupCode bool
}
