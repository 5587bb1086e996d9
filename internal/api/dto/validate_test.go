package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(StaffCreateRequest{Email: "nope", Password: "short", Role: "owner"})
	require.Error(t, err)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	fields, ok := de.Details["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "min", fields["password"])
	assert.Equal(t, "oneof", fields["role"])
}

func TestValidateAcceptsGoodPayloads(t *testing.T) {
	require.NoError(t, Validate(StaffLoginRequest{Email: "a@b.co", Password: "x"}))
	require.NoError(t, Validate(IntakeRequest{ExternalID: "<m1@mail>"}))
	require.Error(t, Validate(IntakeRequest{ExternalID: "m1", Urgency: "meh"}))
}
