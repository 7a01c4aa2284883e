package playback

// Play resumes (or keeps) audible playback. A step that is already
// prepared replays from its start; a step still loading will start as soon
// as preparation resolves.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan == nil {
		return
	}
	if p.liveSessionActive {
		p.liveSavedIntent = intentPlaying
		return
	}

	p.intent = intentPlaying
	if p.prepared != nil && p.phase == PhasePaused {
		p.setPhaseLocked(PhasePlaying)
		p.startPlaybackLocked()
	}
}

// Pause holds playback. Prepared media stays ready; audio stops
// immediately and no auto-advance happens until Play.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.liveSessionActive {
		p.liveSavedIntent = intentPaused
		return
	}

	p.intent = intentPaused
	p.stopPlaybackLocked()
	if p.phase == PhasePlaying {
		p.setPhaseLocked(PhasePaused)
	}
}

// Restart rewinds a lesson to its first step and plays. It is the only way
// out of the completed phase.
func (p *Player) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan == nil {
		return
	}

	p.intent = intentPlaying
	p.setStepIndexLocked(0)
}

func (p *Player) Next() error {
	p.mu.Lock()
	index := p.stepIndex + 1
	p.mu.Unlock()
	return p.SetStepIndex(index)
}

func (p *Player) Previous() error {
	p.mu.Lock()
	index := p.stepIndex - 1
	p.mu.Unlock()
	return p.SetStepIndex(index)
}

// SetMuted flips the mute flag. In-flight preparation is not redone; the
// flag is read again at play time, so a step prepared while muted plays as
// timed silence rather than re-requesting synthesis.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// SetLanguage switches the narration language and re-prepares the current
// step in it.
func (p *Player) SetLanguage(language string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if language == "" || language == p.language {
		return
	}

	p.language = language
	if p.plan != nil && p.phase != PhaseIdle && p.phaseAllowsReprepare() {
		p.setStepIndexLocked(p.stepIndex)
	}
}

// SetExploring toggles free-exploration mode: exploration narration is
// used where a step has one, and auto-advance is held so the learner can
// linger.
func (p *Player) SetExploring(exploring bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if exploring == p.exploring {
		return
	}

	p.exploring = exploring
	if p.plan != nil && p.phase != PhaseIdle && p.phaseAllowsReprepare() {
		p.setStepIndexLocked(p.stepIndex)
	}
}

func (p *Player) phaseAllowsReprepare() bool {
	return p.phase != PhaseCompleted && p.phase != PhaseError && !p.liveSessionActive
}
