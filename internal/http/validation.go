package http

import (
	"log"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/mrlokans/librarian/internal/entities"
)

var registerValidatorsOnce sync.Once

// registerValidators installs the custom binding tags on gin's validator.
// The "isbn" tag replaces validator's checksum-verifying rule with a format
// check, since catalog data carries ISBNs as printed.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("isbn", validateISBN); err != nil {
			log.Printf("[HTTP] Failed to register isbn validator: %v", err)
		}
	})
}

func validateISBN(fl validator.FieldLevel) bool {
	return entities.IsValidISBN(fl.Field().String())
}
