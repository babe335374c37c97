package services

import (
	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
)

// LoginOutcome is the verdict of AccountService.Login.
type LoginOutcome int

const (
	_ LoginOutcome = iota
	LoginNoSuchUser
	LoginSetupIncomplete
	LoginOtpExpired
	LoginOtpMismatch
	// LoginOtpAccepted means the one-time password matched. The caller
	// must collect a new password and call ResetPasswordAfterOtp; the
	// account stays in OTP mode until then.
	LoginOtpAccepted
	LoginRoleNotGranted
	LoginBadPassword
	LoginSuccess
)

var outcomeNames = map[LoginOutcome]string{
	LoginNoSuchUser:      "no_such_user",
	LoginSetupIncomplete: "setup_incomplete",
	LoginOtpExpired:      "otp_expired",
	LoginOtpMismatch:     "otp_mismatch",
	LoginOtpAccepted:     "otp_accepted",
	LoginRoleNotGranted:  "role_not_granted",
	LoginBadPassword:     "bad_password",
	LoginSuccess:         "success",
}

func (o LoginOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Err maps a failed outcome to its error. Success and OtpAccepted map to nil.
func (o LoginOutcome) Err() error {
	switch o {
	case LoginSuccess, LoginOtpAccepted:
		return nil
	case LoginNoSuchUser:
		return common.ErrNoSuchUser
	case LoginSetupIncomplete:
		return common.ErrSetupIncomplete
	case LoginOtpExpired:
		return common.ErrOtpExpired
	case LoginOtpMismatch:
		return common.ErrOtpMismatch
	case LoginRoleNotGranted:
		return common.ErrRoleNotGranted
	case LoginBadPassword:
		return common.ErrBadPassword
	default:
		return common.ErrorInvalidCredential
	}
}

// LoginResult carries the outcome and, once the credential was accepted,
// the identity the session is built from.
type LoginResult struct {
	Outcome  LoginOutcome
	Username string
	Role     models.Role
	Roles    models.RoleSet
}
