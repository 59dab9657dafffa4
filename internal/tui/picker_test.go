package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgazer/internal/adapter"
	"netgazer/internal/capture/capturetest"
)

func handles(t *testing.T, names ...string) []*adapter.Handle {
	t.Helper()
	reg, err := adapter.New(capturetest.NewDriver(names...))
	require.NoError(t, err)
	t.Cleanup(reg.Dispose)
	return reg.Handles()
}

func press(m tea.Model, keys ...tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(k)
	}
	return m, cmd
}

func TestPickerSelectsRow(t *testing.T) {
	m := NewPickerModel(handles(t, "eth0", "wlan0", "lo"))
	assert.Contains(t, m.View(), "wlan0")

	final, cmd := press(m,
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	idx, ok := final.(PickerModel).Selected()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Empty(t, final.View())
}

func TestPickerQuit(t *testing.T) {
	for _, k := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		final, cmd := press(NewPickerModel(handles(t, "eth0")), k)
		require.NotNil(t, cmd, k.String())
		_, ok := final.(PickerModel).Selected()
		assert.False(t, ok, k.String())
	}
}

func TestPickDefaultsWithoutAdapters(t *testing.T) {
	_, err := Pick(nil, nil, nil)
	assert.ErrorIs(t, err, ErrAborted)
}
