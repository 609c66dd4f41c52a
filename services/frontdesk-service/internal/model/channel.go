package model

import (
	"fmt"
	"strings"
)

// Channel is a closed enumeration of the contact media a patient can be
// reached through. Chat covers messenger-style apps with a per-patient
// handle; Social covers public social-media handles (inbound identification
// only, never reminder delivery).
type Channel string

const (
	ChannelChat   Channel = "chat"
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelPhone  Channel = "phone"
	ChannelSocial Channel = "social"
)

func ParseChannel(raw string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(raw))) {
	case ChannelChat:
		return ChannelChat, nil
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelPhone:
		return ChannelPhone, nil
	case ChannelSocial:
		return ChannelSocial, nil
	}
	return "", fmt.Errorf("unknown channel %q", raw)
}

func (c Channel) String() string { return string(c) }

// Contact is a tagged contact value: the channel it arrived on plus the raw
// address (phone number, email, chat handle, social handle).
type Contact struct {
	Channel Channel
	Value   string
}
