package services

import (
	"context"
	"testing"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_Verification(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "verify@example.com", "password123", false)

	token, err := env.tokens.IssueVerification(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	accountID, err := env.tokens.RedeemVerification(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, accountID)
	assert.True(t, env.reload(t, user).IsVerified)

	_, err = env.tokens.RedeemVerification(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = env.tokens.RedeemVerification(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenStore_ExpiredVerificationIsDeleted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "late@example.com", "password123", false)

	token, err := env.tokens.IssueVerification(ctx, user.ID)
	require.NoError(t, err)

	env.clock.Advance(VerificationTokenTTL)
	_, err = env.tokens.RedeemVerification(ctx, token)
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, env.reload(t, user).IsVerified)

	_, err = env.tokens.RedeemVerification(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenStore_ResetReplacesEarlierToken(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "reset@example.com", "password123", true)

	first, err := env.tokens.IssueReset(ctx, user.ID)
	require.NoError(t, err)
	second, err := env.tokens.IssueReset(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	var count int64
	require.NoError(t, env.db.Model(&models.ResetPasswordToken{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	hash, err := utils.HashPassword("brand-new-password")
	require.NoError(t, err)

	_, err = env.tokens.RedeemReset(ctx, first, hash)
	assert.ErrorIs(t, err, ErrInvalidToken)

	accountID, err := env.tokens.RedeemReset(ctx, second, hash)
	require.NoError(t, err)
	assert.Equal(t, user.ID, accountID)
	assert.True(t, utils.CheckPassword("brand-new-password", *env.reload(t, user).PasswordHash))
}

func TestTokenStore_ExpiredReset(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "slow@example.com", "password123", true)

	token, err := env.tokens.IssueReset(ctx, user.ID)
	require.NoError(t, err)

	env.clock.Advance(ResetTokenTTL + time.Second)
	_, err = env.tokens.RedeemReset(ctx, token, "unused")
	assert.ErrorIs(t, err, ErrExpired)
	assert.True(t, utils.CheckPassword("password123", *env.reload(t, user).PasswordHash))
}

func TestTokenStore_SweepExpired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sweep@example.com", "password123", false)

	_, err := env.tokens.IssueVerification(ctx, user.ID)
	require.NoError(t, err)
	_, err = env.tokens.IssueReset(ctx, user.ID)
	require.NoError(t, err)

	swept, err := env.tokens.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	env.clock.Advance(ResetTokenTTL)
	swept, err = env.tokens.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	env.clock.Advance(VerificationTokenTTL)
	swept, err = env.tokens.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
}
