package event

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/jazzedge/academy/core"
)

var (
	intervalUnitTag  = "interval_unit"
	intervalUnitText = "unit must be one of: days, weeks, months"
)

// InitValidators registers the event validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(intervalUnitTag, intervalUnitValidation)
	core.RegisterCustomTranslation(validate, translator, intervalUnitTag, intervalUnitText)
}

func intervalUnitValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case UnitDays, UnitWeeks, UnitMonths:
		return true
	}
	return false
}
