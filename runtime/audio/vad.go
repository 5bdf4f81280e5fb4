package audio

// Defaults of the speech gate applied to captured segments.
const (
	DefaultVADConfidence = 0.5
	DefaultVADStartSecs  = 0.2
	DefaultVADStopSecs   = 0.8
	DefaultVADMinVolume  = 0.01
	DefaultVADSampleRate = 16000
	DefaultVADFrameMS    = 20
)

const unknownState = "unknown"

// VADState is the detector state while it walks a segment frame by frame.
type VADState int

const (
	// VADStateQuiet: no speech yet, or speech ended.
	VADStateQuiet VADState = iota
	// VADStateStarting: loud frames seen, StartSecs not reached.
	VADStateStarting
	// VADStateSpeaking: speech confirmed.
	VADStateSpeaking
	// VADStateStopping: quiet frames after speech, StopSecs not reached.
	VADStateStopping
)

// String returns the state name used in logs.
func (s VADState) String() string {
	switch s {
	case VADStateQuiet:
		return "quiet"
	case VADStateStarting:
		return "starting"
	case VADStateSpeaking:
		return "speaking"
	case VADStateStopping:
		return "stopping"
	default:
		return unknownState
	}
}

// VADParams tunes the speech-validity gate.
type VADParams struct {
	// Confidence is the per-frame speech probability that counts as a loud
	// frame (0.0-1.0).
	Confidence float64

	// StartSecs of continuous loud frames confirm speech. Shorter bursts,
	// such as a cough or a keyboard click, never reach VADStateSpeaking.
	StartSecs float64

	// StopSecs of quiet frames end a speech run.
	StopSecs float64

	// MinVolume is the RMS floor; quieter frames are silence.
	MinVolume float64

	// SampleRate is replaced by the rate of the analyzed buffer.
	SampleRate int

	// FrameMS is the analysis window.
	FrameMS int
}

// DefaultVADParams returns the gate defaults.
func DefaultVADParams() VADParams {
	return VADParams{
		Confidence: DefaultVADConfidence,
		StartSecs:  DefaultVADStartSecs,
		StopSecs:   DefaultVADStopSecs,
		MinVolume:  DefaultVADMinVolume,
		SampleRate: DefaultVADSampleRate,
		FrameMS:    DefaultVADFrameMS,
	}
}

// Validate reports the first out-of-range parameter.
func (p VADParams) Validate() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return &ValidationError{Field: "Confidence", Message: "must be between 0.0 and 1.0"}
	}
	if p.StartSecs < 0 {
		return &ValidationError{Field: "StartSecs", Message: "must be non-negative"}
	}
	if p.StopSecs < 0 {
		return &ValidationError{Field: "StopSecs", Message: "must be non-negative"}
	}
	if p.MinVolume < 0 || p.MinVolume > 1 {
		return &ValidationError{Field: "MinVolume", Message: "must be between 0.0 and 1.0"}
	}
	if p.SampleRate <= 0 {
		return &ValidationError{Field: "SampleRate", Message: "must be positive"}
	}
	if p.FrameMS <= 0 {
		return &ValidationError{Field: "FrameMS", Message: "must be positive"}
	}
	return nil
}

// ValidationError names an invalid VADParams field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}
