package domain

// Verification code types.
const (
	VerificationEmail         = "email_verification"
	VerificationPasswordReset = "password_reset"
)

// VerificationCode is a one-shot code record. PK: code (random, unguessable).
// A code is deleted immediately upon successful use; unconsumed codes expire.
// CreatedAt feeds the rolling-window rate limit on password-reset issuance.
type VerificationCode struct {
	Code      string `dynamodbav:"code"`
	UserID    string `dynamodbav:"user_id"`
	Type      string `dynamodbav:"type"`
	CreatedAt int64  `dynamodbav:"created_at"` // Unix seconds
	ExpiresAt int64  `dynamodbav:"expires_at"` // Unix seconds, DynamoDB TTL
}
