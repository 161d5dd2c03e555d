package textflow

// State is the text workflow state.
type State struct {
	RunID            string       `json:"run_id,omitempty"`
	ContentTopic     string       `json:"content_topic"`
	ContentType      string       `json:"content_type"`
	PersonaExtracted string       `json:"persona_extracted,omitempty"`
	InstagramText    string       `json:"instagram_text,omitempty"`
	CheckResult      *CheckResult `json:"check_result,omitempty"`
}

// Reduce merges a node's delta into the state. Non-zero fields replace.
func Reduce(prev, delta State) State {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.ContentTopic != "" {
		prev.ContentTopic = delta.ContentTopic
	}
	if delta.ContentType != "" {
		prev.ContentType = delta.ContentType
	}
	if delta.PersonaExtracted != "" {
		prev.PersonaExtracted = delta.PersonaExtracted
	}
	if delta.InstagramText != "" {
		prev.InstagramText = delta.InstagramText
	}
	if delta.CheckResult != nil {
		prev.CheckResult = delta.CheckResult
	}
	return prev
}
