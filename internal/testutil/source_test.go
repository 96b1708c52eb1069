package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeSource_NotifiesOnChangeOnly(t *testing.T) {
	src := NewFakeSource(false)

	var got []bool
	unsubscribe := src.Subscribe(func(online bool) { got = append(got, online) })

	src.SetOnline(false)
	src.SetOnline(true)
	src.SetOnline(true)
	src.SetOnline(false)

	assert.Equal(t, []bool{true, false}, got)

	unsubscribe()
	assert.Zero(t, src.Subscribers())
	src.SetOnline(true)
	assert.Len(t, got, 2)
	assert.True(t, src.Online())
}
