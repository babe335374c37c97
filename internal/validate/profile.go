package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// engine returns the shared validator, configured to report JSON field names
// and to check emails with Email instead of the library's RFC rules.
func engine() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
			return Email(fl.Field().String())
		})
		structValidator = v
	})
	return structValidator
}

type profileInput struct {
	models.Profile
	Email string `json:"email" validate:"required,emailshape"`
}

// Profile checks the details collected at setup. The returned error wraps
// common.ErrorInvalidInput and lists every failing field.
func Profile(p models.Profile, email string) error {
	in := profileInput{Profile: NormalizeProfile(p), Email: strings.TrimSpace(email)}
	err := engine().Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrorInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": "+formatFieldError(fe))
	}
	if len(verrs) == 1 && verrs[0].Tag() == "emailshape" {
		return fmt.Errorf("%s: %w", msgs[0], common.ErrInvalidEmail)
	}
	return fmt.Errorf("%w: %s", common.ErrorInvalidInput, strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "emailshape":
		return "must be a valid email"
	default:
		return "is invalid"
	}
}

// NormalizeProfile returns p with surrounding blanks removed from every field.
func NormalizeProfile(p models.Profile) models.Profile {
	return models.Profile{
		FirstName:     strings.TrimSpace(p.FirstName),
		MiddleName:    strings.TrimSpace(p.MiddleName),
		LastName:      strings.TrimSpace(p.LastName),
		PreferredName: strings.TrimSpace(p.PreferredName),
	}
}
