package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type permissionInput struct {
	Role   string `json:"role" validate:"required,role"`
	Module string `json:"module" validate:"required,module"`
	Action string `json:"action" validate:"omitempty,action"`
}

func TestDomainTags(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		input  permissionInput
		fields []string
	}{
		{"valid", permissionInput{Role: "nurse", Module: "medications", Action: "edit"}, nil},
		{"unknown role", permissionInput{Role: "janitor", Module: "medications"}, []string{"role"}},
		{"unknown module", permissionInput{Role: "nurse", Module: "kitchen"}, []string{"module"}},
		{"unknown action", permissionInput{Role: "nurse", Module: "patients", Action: "approve"}, []string{"action"}},
		{"missing both", permissionInput{}, []string{"role", "module"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			got := Fields(err)
			require.Len(t, got, len(tt.fields))
			for i, f := range tt.fields {
				assert.Equal(t, f, got[i].Field)
			}
		})
	}
}

func TestFields_NonValidationError(t *testing.T) {
	assert.Nil(t, Fields(errors.New("boom")))
}
