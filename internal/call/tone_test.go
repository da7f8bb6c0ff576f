package call

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlayer struct {
	handles []*toneHandleStub
	failOn  ToneKind
}

func (p *recordingPlayer) Play(kind ToneKind) (ToneHandle, error) {
	if kind == p.failOn {
		return nil, errors.New("audio backend unavailable")
	}
	h := &toneHandleStub{}
	p.handles = append(p.handles, h)
	return h, nil
}

func TestToneControllerSingleSlot(t *testing.T) {
	player := &recordingPlayer{}
	c := NewToneController(player)

	c.Play(ToneRingback)
	c.Play(ToneConnected)

	require.Len(t, player.handles, 2)
	assert.True(t, player.handles[0].stopped)
	assert.False(t, player.handles[1].stopped)

	c.Stop()
	assert.True(t, player.handles[1].stopped)

	// Stop with nothing playing is harmless.
	c.Stop()
}

func TestToneControllerPlayerFailureSilences(t *testing.T) {
	player := &recordingPlayer{failOn: ToneBusy}
	c := NewToneController(player)

	c.Play(ToneRingtone)
	c.Play(ToneBusy)

	require.Len(t, player.handles, 1)
	assert.True(t, player.handles[0].stopped)
	c.Stop()
}

func TestToneControllerNilPlayer(t *testing.T) {
	c := NewToneController(nil)
	c.Play(ToneRingtone)
	c.Stop()
}
