package service

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/iliyamo/admin-auth/internal/utils"
)

// LoginRequest is the input of Login. Identifier is an email or a phone
// number. IP and UserAgent come from the transport, not the body.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	RememberMe bool   `json:"remember_me"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

func (r LoginRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.DeviceID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.DeviceName, validation.Length(0, 128)),
	)
}

// RegisterRequest is the input of Register. Phone is optional.
type RegisterRequest struct {
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name,omitempty"`
	IP              string `json:"-"`
	UserAgent       string `json:"-"`
}

func (r RegisterRequest) validate(region string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Phone, validation.By(phoneRule(region))),
		validation.Field(&r.Password, validation.Required, validation.By(passwordPolicy)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(equals(r.Password))),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.DeviceID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.DeviceName, validation.Length(0, 128)),
	)
}

// RefreshRequest is the input of Refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
	IP           string `json:"-"`
}

func (r RefreshRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
		validation.Field(&r.DeviceID, validation.Required, validation.Length(1, 128)),
	)
}

// LogoutRequest is the input of Logout and LogoutAllDevices.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	IP           string `json:"-"`
}

func (r LogoutRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// UpdateProfileRequest is the input of UserService.UpdateProfile. An empty
// phone clears the stored number.
type UpdateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

func (r UpdateProfileRequest) validate(region string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Phone, validation.By(phoneRule(region))),
	)
}

// ChangePasswordRequest is the input of UserService.ChangePassword.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
	IP              string `json:"-"`
}

func (r ChangePasswordRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.By(passwordPolicy)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(equals(r.NewPassword))),
	)
}

func passwordPolicy(value interface{}) error {
	s, _ := value.(string)
	if s == "" || utils.MeetsPasswordPolicy(s) {
		return nil
	}
	return errors.New("must be at least 8 characters with upper and lower case letters, a digit and a symbol")
}

func equals(want string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != want {
			return errors.New("does not match password")
		}
		return nil
	}
}

func phoneRule(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := utils.NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}
