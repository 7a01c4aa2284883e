package playback

// PlaybackPhase is the sequencer's externally visible state. It is owned
// exclusively by the [Player]; collaborators read it through snapshots.
type PlaybackPhase string

const (
	// PhaseIdle means no lesson plan is loaded.
	PhaseIdle PlaybackPhase = "idle"
	// PhaseLoading means the current step's media is being prepared. No
	// audio plays and no auto-advance happens while loading.
	PhaseLoading PlaybackPhase = "loading"
	// PhasePlaying means the current step's media is prepared and audible
	// (or silently timing out when muted).
	PhasePlaying PlaybackPhase = "playing"
	// PhasePaused means the current step's media is prepared but held.
	PhasePaused PlaybackPhase = "paused"
	// PhaseCompleted is terminal until an explicit restart.
	PhaseCompleted PlaybackPhase = "completed"
	// PhaseError means preparation failed unrecoverably. Degradable
	// failures (synthesis, visuals) never reach this phase.
	PhaseError PlaybackPhase = "error"
)

type playIntent string

const (
	intentPlaying playIntent = "playing"
	intentPaused  playIntent = "paused"
)
