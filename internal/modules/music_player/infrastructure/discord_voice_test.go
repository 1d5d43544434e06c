package infrastructure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
	"github.com/stretchr/testify/assert"
)

func TestCheckVoicePermissions(t *testing.T) {
	tests := []struct {
		name    string
		perms   int64
		wantErr bool
	}{
		{name: "connect and speak", perms: discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak},
		{name: "administrator", perms: discordgo.PermissionAdministrator},
		{name: "connect only", perms: discordgo.PermissionVoiceConnect, wantErr: true},
		{name: "speak only", perms: discordgo.PermissionVoiceSpeak, wantErr: true},
		{name: "nothing", perms: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkVoicePermissions(tt.perms)
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrVoicePermission)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMapVoiceError(t *testing.T) {
	missing := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{
			Code:    discordgo.ErrCodeMissingPermissions,
			Message: "Missing Permissions",
		},
	}
	assert.ErrorIs(t, mapVoiceError(fmt.Errorf("join: %w", missing)), ports.ErrVoicePermission)

	other := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
	}
	assert.False(t, errors.Is(mapVoiceError(other), ports.ErrVoicePermission))

	timeout := errors.New("timeout waiting for voice")
	assert.Equal(t, timeout, mapVoiceError(timeout))
}
