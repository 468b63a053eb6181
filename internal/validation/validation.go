package validation

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("validation failed")

const (
	usernameLength = "Username must be between 3 and 30 characters"
	invalidYear    = "Invalid published year"
)

// messages overrides the generic text for a label and a failed tag.
var messages = map[string]string{
	"Username.min":             usernameLength,
	"Username.max":             usernameLength,
	"Username.username":        "Username can only contain letters, numbers, and underscores",
	"Password.min":             "Password must be at least 8 characters long",
	"Password.password":        "Password must contain at least one uppercase letter, one lowercase letter, and one number",
	"Published year.gte":       invalidYear,
	"Published year.notfuture": invalidYear,
}

var usernameRx = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type nowKey struct{}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRx.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})
	_ = v.RegisterValidationCtx("notfuture", func(ctx context.Context, fl validator.FieldLevel) bool {
		now, ok := ctx.Value(nowKey{}).(time.Time)
		if !ok {
			now = time.Now()
		}
		return fl.Field().Int() <= int64(now.Year())
	})
	return v
}

func strongPassword(password string) bool {
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// Error carries the first failed check as a client-facing message.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Struct validates the `validate` tags of s. Fields are named in messages by
// their `label` tag. now bounds the notfuture rule.
func Struct(s any, now time.Time) error {
	err := validate.StructCtx(context.WithValue(context.Background(), nowKey{}, now), s)
	return translate(err, "")
}

// Var validates a single value against rules, naming it label in messages.
func Var(label string, value any, rules string) error {
	return translate(validate.Var(value, rules), label)
}

func translate(err error, label string) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	if label == "" {
		label = fe.Field()
	}
	if msg, ok := messages[label+"."+fe.Tag()]; ok {
		return &Error{Message: msg}
	}
	if fe.Tag() == "required" {
		return &Error{Message: label + " is required"}
	}
	return &Error{Message: label + " is invalid"}
}
