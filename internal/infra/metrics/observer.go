package metrics

// Observer forwards use-case events to the Prometheus collectors.
type Observer struct{}

func (Observer) CacheLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	IncAvailabilityLookup("local", provider, result)
}

func (Observer) GenerationAttempt(provider, outcome string) { IncGenerationAttempt(provider, outcome) }
func (Observer) Fallback(reason string)                     { IncFallback(reason) }
func (Observer) Synthesis(provider, mode string)            { IncSynthesis(provider, mode) }
func (Observer) TrainingStatus(status string)               { IncTrainingTransition(status) }
