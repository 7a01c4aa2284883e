package playback

// Live-session arbitration. Scripted playback and the live free-form
// session are mutually exclusive audio producers: while the live session is
// active the sequencer is frozen (audio stopped, no auto-advance, prefetch
// suppressed), and on exit playback resumes at the committed step with the
// play intent it had before activation.

// EnterLiveSession suspends scripted playback and hands the audio channel
// to the live session collaborator. Entering twice is a no-op.
func (p *Player) EnterLiveSession() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.liveSessionActive {
		return
	}

	p.liveSessionActive = true
	p.liveSavedIntent = p.intent
	p.intent = intentPaused
	p.stopPlaybackLocked()
	if p.phase == PhasePlaying {
		p.setPhaseLocked(PhasePaused)
	}
}

// ExitLiveSession restores scripted playback. The committed step is
// re-prepared (a cache hit when it played before) and the pre-session play
// intent decides whether it starts audibly or stays ready and silent.
func (p *Player) ExitLiveSession() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.liveSessionActive {
		return
	}

	p.liveSessionActive = false
	p.intent = p.liveSavedIntent

	if p.plan == nil {
		p.setPhaseLocked(PhaseIdle)
		return
	}
	p.setStepIndexLocked(p.stepIndex)
}

func (p *Player) LiveSessionActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveSessionActive
}
