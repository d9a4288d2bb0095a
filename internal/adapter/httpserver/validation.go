package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// ChatRequest is the body of POST /api/chat/.
type ChatRequest struct {
	Message string `json:"message"`
}

// MessageRequest is the body of message create and full update.
type MessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// MessagePatchRequest is the body of a partial message update.
type MessagePatchRequest struct {
	Role    *string `json:"role" validate:"omitempty,oneof=user assistant system"`
	Content *string `json:"content" validate:"omitempty,min=1"`
}

// validateChat checks the message length in characters, 1..maxLen.
func validateChat(req ChatRequest, maxLen int) error {
	if maxLen <= 0 {
		maxLen = 1000
	}
	if err := getValidator().Var(req.Message, "required,max="+strconv.Itoa(maxLen)); err != nil {
		return fmt.Errorf("%w: message: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func validateStruct(v interface{}) error {
	if err := getValidator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	return nil
}

// fieldErrors flattens validator errors into field => tag pairs for the
// response details.
func fieldErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := map[string]string{}
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
