package browser

import "time"

func (m *Manager) SetClock(now func() time.Time) {
	m.nowFunc = now
}

var KillProcessTree = killProcessTree
