package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// stagePattern matches the orchestrator stage names.
var stagePattern = regexp.MustCompile(`^(AUDIO_CHECK|RESULTS|SECTION_[1-9][0-9]*)$`)

// keyPattern restricts identifiers that end up inside store keys.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// Register English translations.
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("stage", func(fl govalidator.FieldLevel) bool {
			return stagePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterTranslation("stage", trans,
			func(ut ut.Translator) error {
				return ut.Add("stage", "{0} must be AUDIO_CHECK, RESULTS or SECTION_<n>", true)
			},
			func(ut ut.Translator, fe govalidator.FieldError) string {
				t, _ := ut.T("stage", fe.Field())
				return t
			},
		)
	}
}

// ValidQuestionKey reports whether a path parameter can be used as a
// question key.
func ValidQuestionKey(key string) bool {
	return keyPattern.MatchString(key)
}

// ValidResourceID reports whether a section or mock id can be used in a
// store key.
func ValidResourceID(id string) bool {
	return keyPattern.MatchString(id)
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
