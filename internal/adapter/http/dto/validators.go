package dto

import (
	"html"
	"reflect"
	"strings"

	"exchange-core/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("currency_code", validateCurrencyCode)
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
	}
}

// validateCurrencyCode checks the shape of a code. Membership in the
// configured set is decided by the ledger.
func validateCurrencyCode(fl validator.FieldLevel) bool {
	return domain.ValidCurrencyCode(fl.Field().String())
}

// validateDecimalAmount accepts a positive decimal string within the stored scale.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	d, err := domain.ParseAmount(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer. Fields tagged
// `sanitize:"-"` are left untouched; `sanitize:"trim"` fields are only
// trimmed, so lookup keys such as identifiers keep their exact bytes.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		mode := rt.Field(i).Tag.Get("sanitize")
		if !f.CanSet() || mode == "-" {
			continue
		}
		clean := sanitize
		if mode == "trim" {
			clean = strings.TrimSpace
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(clean(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(clean(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
