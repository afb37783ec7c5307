package audit

// costPerMinute is the USD list price per minute of audio for hosted models.
// Self-hosted models (the local backend) cost nothing here.
var costPerMinute = map[string]map[string]float64{
	"openai-whisper": {
		"whisper-1":              0.006,
		"gpt-4o-transcribe":      0.006,
		"gpt-4o-mini-transcribe": 0.003,
	},
	"google-speech": {
		"latest_long":  0.016,
		"latest_short": 0.016,
		"default":      0.016,
	},
}

// EstimateCost prices billable audio for a provider/model pair. Unknown pairs cost 0.
func EstimateCost(provider, model string, seconds float64) float64 {
	price, ok := costPerMinute[provider][model]
	if !ok || seconds <= 0 {
		return 0
	}
	return seconds / 60.0 * price
}
