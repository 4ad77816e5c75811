package ticket

import (
	"deskbot.org/internal/platform"
)

// Button custom ids wired through the gateway dispatcher.
const (
	ButtonClaim = "claim_ticket"
	ButtonClose = "close_ticket"
)

// Modal field ids.
const (
	modalID          = "ticket_modal"
	fieldReason      = "ticket_reason"
	fieldPlayerName  = "player_name"
	fieldDescription = "ticket_description"
)

func creationModal() platform.Modal {
	return platform.Modal{
		ID:    modalID,
		Title: "Create a Ticket",
		Fields: []platform.ModalField{
			{ID: fieldReason, Label: "Reason for ticket", Required: true},
			{ID: fieldPlayerName, Label: "Player Name", Required: true},
			{ID: fieldDescription, Label: "Additional Information", Paragraph: true},
		},
	}
}

func summaryEmbed(reason, playerName, description string) platform.Embed {
	if description == "" {
		description = "No additional information provided"
	}
	return platform.Embed{
		Title:       "Ticket Created",
		Description: "Support will be with you shortly.",
		Color:       "blue",
		Fields: []platform.EmbedField{
			{Name: "Reason", Value: reason},
			{Name: "Player Name", Value: playerName},
			{Name: "Additional Information", Value: description},
		},
	}
}

func claimedEmbed(claimerTag string) platform.Embed {
	return platform.Embed{
		Title:       "Ticket Claimed",
		Description: "This ticket has been claimed by " + claimerTag,
		Color:       "green",
	}
}

func closedEmbed(channelName, closerTag string) platform.Embed {
	return platform.Embed{
		Title:       "Ticket Closed: " + channelName,
		Description: "Ticket closed by " + closerTag,
		Color:       "red",
	}
}

// statusButtons returns the component row for the pinned status message.
// Close appears only once a claimant exists; before that the sole
// affordance is Claim, which becomes Ask More Support afterwards,
// disabled once escalation happened.
func statusButtons(claimed, escalated bool) []platform.Button {
	if !claimed {
		return []platform.Button{
			{ID: ButtonClaim, Label: "Claim Ticket", Style: platform.StylePrimary},
		}
	}
	return []platform.Button{
		{ID: ButtonClaim, Label: "Ask More Support", Style: platform.StyleSecondary, Disabled: escalated},
		{ID: ButtonClose, Label: "Close Ticket", Style: platform.StyleDanger},
	}
}

// findStatusMessage locates the bot's summary message: the most recent one
// carrying both an embed and buttons.
func findStatusMessage(messages []platform.Message) (platform.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if len(m.Embeds) > 0 && len(m.Buttons) > 0 {
			return m, true
		}
	}
	return platform.Message{}, false
}
