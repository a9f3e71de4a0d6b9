package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxAuthLength mirrors the one-byte length prefix of the authentication frame.
const MaxAuthLength = 255

// ErrInvalidCredentials is returned by Validate.
var ErrInvalidCredentials = errors.New("invalid connection credentials")

// ConnectionCredentials is what the device needs to reach its server.
type ConnectionCredentials struct {
	Host   string `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port   uint16 `yaml:"port" validate:"required,min=1"`
	User   string `yaml:"user" validate:"required,excludes=:"`
	Secret string `yaml:"secret" validate:"required"`
}

// Address returns host:port, bracketing IPv6 literals.
func (c ConnectionCredentials) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// String omits the secret.
func (c ConnectionCredentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Address())
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(authLengthValidation, ConnectionCredentials{})
	return v
}

func authLengthValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(ConnectionCredentials)
	if len(c.User)+1+len(c.Secret) > MaxAuthLength {
		sl.ReportError(c.Secret, "Secret", "Secret", "authlen", strconv.Itoa(MaxAuthLength))
	}
}

// Validate checks the credentials before they are stored or used.
func (c ConnectionCredentials) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidCredentials, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param()
	case "excludes":
		return field + " must not contain " + strconv.Quote(fe.Param())
	case "authlen":
		return "user:secret must not exceed " + fe.Param() + " bytes"
	case "hostname_rfc1123|ip":
		return field + " must be a host name or IP address"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
