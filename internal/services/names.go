// Package services contains the adapters around each third-party API the
// pipeline calls. Adapters convert duck-typed HTTP responses into the closed
// outcome set the pipeline switches on.
package services

// Third-party service names. These key the rate limiter windows, breaker
// registry entries, and per-service configuration.
const (
	Apollo          = "apollo"
	MillionVerifier = "millionverifier"
	Perplexity      = "perplexity"
	OpenAI          = "openai"
	Instantly       = "instantly"
)

// Required lists every service a campaign depends on. Campaign start and
// resume require all of their breakers closed.
func Required() []string {
	return []string{Apollo, MillionVerifier, Perplexity, OpenAI, Instantly}
}

// Critical is the lead-source service. An open breaker here refuses campaign
// start outright, distinguishable from any other service being down.
const Critical = Apollo
