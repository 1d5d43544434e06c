package infrastructure

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrmusic/internal/modules/music_player/application/ports"
)

// MemberSource looks up guild members, from the gateway cache first.
type MemberSource interface {
	CachedMember(guildID, userID string) (*discordgo.Member, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// sessionMembers adapts *discordgo.Session to MemberSource.
type sessionMembers struct {
	*discordgo.Session
}

func (s sessionMembers) CachedMember(guildID, userID string) (*discordgo.Member, error) {
	if s.State == nil {
		return nil, discordgo.ErrStateNotFound
	}
	return s.State.Member(guildID, userID)
}

// DiscordUserInfoProvider resolves requester names and avatars for embeds.
type DiscordUserInfoProvider struct {
	members MemberSource
}

// NewDiscordUserInfoProvider creates a provider backed by a Discord session.
func NewDiscordUserInfoProvider(session *discordgo.Session) *DiscordUserInfoProvider {
	return NewUserInfoProvider(sessionMembers{session})
}

// NewUserInfoProvider creates a provider backed by any MemberSource.
func NewUserInfoProvider(members MemberSource) *DiscordUserInfoProvider {
	return &DiscordUserInfoProvider{members: members}
}

// GetUserInfo returns the member's display name and avatar. The state
// cache is consulted before the REST API.
func (p *DiscordUserInfoProvider) GetUserInfo(
	guildID, userID snowflake.ID,
) (*ports.UserInfo, error) {
	member, err := p.members.CachedMember(guildID.String(), userID.String())
	if err != nil || member == nil || member.User == nil {
		if err != nil && !errors.Is(err, discordgo.ErrStateNotFound) {
			return nil, fmt.Errorf("failed to read member cache: %w", err)
		}
		member, err = p.members.GuildMember(guildID.String(), userID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch guild member: %w", err)
		}
	}

	return &ports.UserInfo{
		DisplayName: displayName(member),
		AvatarURL:   member.AvatarURL(""),
	}, nil
}

// displayName prefers the guild nickname, then the global name.
func displayName(member *discordgo.Member) string {
	switch {
	case member.Nick != "":
		return member.Nick
	case member.User.GlobalName != "":
		return member.User.GlobalName
	default:
		return member.User.Username
	}
}

var _ ports.UserInfoProvider = (*DiscordUserInfoProvider)(nil)
