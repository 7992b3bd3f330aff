package util

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("calendarday", validateCalendarDay)
	validate.RegisterValidation("clocktime", validateClockTime)
}

func validateCalendarDay(fl validator.FieldLevel) bool {
	_, err := time.Parse(CalendarDayLayout, fl.Field().String())
	return err == nil
}

func validateClockTime(fl validator.FieldLevel) bool {
	_, err := time.Parse(ClockTimeLayout, fl.Field().String())
	return err == nil
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
