package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/hmis-api/internal/handler"
	"github.com/jwalitptl/hmis-api/pkg/validator"
)

// ValidationResponse is the body of a 400 caused by binding rules.
type ValidationResponse struct {
	handler.Response
	Errors []validator.FieldError `json:"errors"`
}

// RegisterValidators installs the domain tags on gin's binding engine. It is
// safe to call more than once.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return nil
	}
	return validator.Register(v)
}

// Validation renders binding failures that handlers attach with c.Error.
func Validation() gin.HandlerFunc {
	if err := RegisterValidators(); err != nil {
		panic(err)
	}

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		var fields []validator.FieldError
		for _, err := range c.Errors {
			fields = append(fields, validator.Fields(err.Err)...)
		}
		if len(fields) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ValidationResponse{
				Response: *handler.NewErrorResponse("validation failed"),
				Errors:   fields,
			})
		}
	}
}
