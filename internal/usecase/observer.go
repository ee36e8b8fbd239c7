package usecase

// Observer receives orchestration events for metrics. Implementations must
// be safe for concurrent use.
type Observer interface {
	CacheLookup(provider string, hit bool)
	GenerationAttempt(provider, outcome string)
	Fallback(reason string)
	Synthesis(provider string, mode string)
	TrainingStatus(status string)
}

type noopObserver struct{}

func (noopObserver) CacheLookup(string, bool)         {}
func (noopObserver) GenerationAttempt(string, string) {}
func (noopObserver) Fallback(string)                  {}
func (noopObserver) Synthesis(string, string)         {}
func (noopObserver) TrainingStatus(string)            {}

func observerOrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}
