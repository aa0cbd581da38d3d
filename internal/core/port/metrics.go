package port

// AuthMetrics captures telemetry hooks for login and token flows.
type AuthMetrics interface {
	ObserveLogin(outcome string)
	IncTokensIssued(tokenType string)
	IncTokensRevoked(scope string)
	IncBlacklistHit()
}
