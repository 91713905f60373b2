package models

// GenerateRequest is what the generation oracle sees. ExecutionResult is only
// read by the combined generator.
type GenerateRequest struct {
	Task            string
	Language        Language
	Context         string
	ExecutionResult string
}

type EvaluateRequest struct {
	Task            string
	Language        Language
	Code            string
	ExecutionResult string
}

type ReasonRequest struct {
	Task             string
	Language         Language
	Code             string
	IterationContext string
}
