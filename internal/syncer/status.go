package syncer

// Running reports whether a pass is in progress.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// State returns the lifecycle position of the most recent pass.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns a copy of the current sync state.
func (m *Manager) Snapshot() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := SyncState{
		State:          m.state,
		IsSyncing:      m.state == StateRunning,
		Progress:       m.progress.Done,
		Total:          m.progress.Total,
		LastFinishedAt: m.lastFinishedAt,
	}
	if m.lastResult != nil {
		copy := *m.lastResult
		snap.LastResult = &copy
		snap.Error = copy.ErrorMessage()
	}
	return snap
}

func (m *Manager) begin() {
	m.mu.Lock()
	m.state = StateRunning
	m.progress = Progress{}
	m.mu.Unlock()
}

func (m *Manager) setProgress(p Progress) {
	m.mu.Lock()
	m.progress = p
	m.mu.Unlock()
}

func (m *Manager) finish(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result.Success {
		m.state = StateCompleted
	} else {
		m.state = StateRolledBack
	}
	copy := result
	m.lastResult = &copy
	m.lastFinishedAt = m.now()
	if result.Success {
		m.progress.Done = m.progress.Total
	}
}
