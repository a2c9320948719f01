package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService("test-signing-key", "bxhive-test", time.Hour)
	actor := id.NewAddress()

	token, err := svc.GenerateAccessToken(actor, "experimenter")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor)
	assert.Equal(t, "experimenter", claims.Role)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewService("key-one", "bxhive-test", time.Hour)
	verifier := NewService("key-two", "bxhive-test", time.Hour)

	token, err := issuer.GenerateAccessToken(id.NewAddress(), "subject")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("test-signing-key", "bxhive-test", -time.Minute)

	token, err := svc.GenerateAccessToken(id.NewAddress(), "subject")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService("test-signing-key", "bxhive-test", time.Hour)
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}
