package common_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/common"
)

type sampleLine struct {
	ID string `json:"id" validate:"required"`
}

type samplePayload struct {
	Items []sampleLine `json:"items" validate:"required,min=1,dive"`
}

func TestValidationErrorUsesJSONNames(t *testing.T) {
	v := common.NewValidator()
	err := v.Struct(samplePayload{Items: []sampleLine{{ID: "a"}, {}}})
	require.Error(t, err)

	appErr := common.ValidationError(err)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	details, ok := appErr.Details.([]common.FieldError)
	require.True(t, ok)
	require.Len(t, details, 1)
	require.Equal(t, "items[1].id", details[0].Field)
	require.Equal(t, "required", details[0].Rule)
}

func TestValidationErrorWrapsOtherErrors(t *testing.T) {
	appErr := common.ValidationError(errors.New("bad json"))
	require.Equal(t, "BAD_REQUEST", appErr.Code)
	require.True(t, common.IsAppError(appErr))
}
