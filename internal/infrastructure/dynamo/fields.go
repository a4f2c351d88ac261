package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmailVerified = "email_verified"
	fieldPasswordHash  = "password_hash"
	fieldRole          = "role"
	fieldMFAEnabled    = "mfa_enabled"
	fieldMFASecret     = "mfa_secret"
	fieldProviders     = "providers"
	fieldProviderKeys  = "provider_keys"
	fieldExpiresAt     = "expires_at"
)
