package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attachForm struct {
	Provider string   `json:"provider" validate:"required,provider"`
	Actor    string   `json:"actor,omitempty" validate:"required,max=8"`
	Limit    int      `json:"limit" validate:"gte=0,lte=200"`
	Tags     []string `json:"tags" validate:"omitempty,dive,required"`
	Internal string   `json:"-" validate:"omitempty,oneof=a b"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name   string
		input  attachForm
		fields []string
	}{
		{"valid", attachForm{Provider: "gmail", Actor: "user-1", Limit: 10}, nil},
		{"missing provider", attachForm{Actor: "user-1"}, []string{"provider"}},
		{"unknown provider", attachForm{Provider: "fax", Actor: "user-1"}, []string{"provider"}},
		{"several failures", attachForm{Provider: "gmail", Actor: "a-very-long-actor", Limit: 500}, []string{"actor", "limit"}},
		{"slice element", attachForm{Provider: "gmail", Actor: "user-1", Tags: []string{"ok", ""}}, []string{"tags[1]"}},
		{"untagged json field", attachForm{Provider: "gmail", Actor: "user-1", Internal: "c"}, []string{"Internal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			assert.Len(t, fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidationMessages(t *testing.T) {
	err := ValidateStruct(attachForm{Provider: "fax", Actor: "a-very-long-actor", Limit: -1})
	fields := GetValidationFields(err)

	assert.Equal(t, "provider must be a supported provider", fields["provider"])
	assert.Equal(t, "actor must be at most 8", fields["actor"])
	assert.Equal(t, "limit must be >= 0", fields["limit"])
	assert.Equal(t, "Validation failed", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "x"}))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}
