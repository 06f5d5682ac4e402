package discord

import (
	"fmt"
	"strings"

	"github.com/andersfylling/disgord"

	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/snapshot"
)

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorBlue   = 0x3498db
	colorOrange = 0xe67e22

	// Discord rejects embeds with more fields or longer descriptions.
	maxFields      = 25
	maxDescription = 4000
)

func promptEmbed(p interact.Prompt) *disgord.Embed {
	return &disgord.Embed{Title: p.Title, Description: p.Body, Color: colorBlue}
}

func messageEmbed(title, body string, color int) *disgord.Embed {
	return &disgord.Embed{Title: title, Description: truncate(body, maxDescription), Color: color}
}

func errorEmbed(title, body string) *disgord.Embed {
	return messageEmbed(title, body, colorRed)
}

func deniedEmbed() *disgord.Embed {
	return errorEmbed("⛔ Permission Denied", "You do not have permission to use this command.")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func resultEmbed(res snapshot.Result) *disgord.Embed {
	if res.Action == snapshot.ActionList && res.Status == snapshot.StatusSucceeded {
		return listEmbed(res)
	}

	color := colorGreen
	switch res.Status {
	case snapshot.StatusFailed:
		color = colorRed
	case snapshot.StatusAborted:
		color = colorOrange
	}

	var b strings.Builder
	b.WriteString(res.Message)
	for _, w := range res.Warnings {
		b.WriteString("\n⚠️ ")
		b.WriteString(w)
	}
	return messageEmbed(res.Title, b.String(), color)
}

func listEmbed(res snapshot.Result) *disgord.Embed {
	e := &disgord.Embed{Title: res.Title, Color: colorBlue}
	if len(res.Snapshots) == 0 {
		e.Description = res.Message
	}

	for i, rec := range res.Snapshots {
		if i == maxFields {
			break
		}
		notes := rec.Notes
		if notes == "" {
			notes = "None"
		}
		e.Fields = append(e.Fields, &disgord.EmbedField{
			Name: rec.Name,
			Value: fmt.Sprintf("**Size:** %s\n**Created:** %s\n**Notes:** %s",
				snapshot.FormatSize(rec.SizeBytes), rec.CreatedAt.Format("2006-01-02 15:04:05"), truncate(notes, 900)),
		})
	}

	var footer []string
	if len(res.Snapshots) > maxFields {
		footer = append(footer, fmt.Sprintf("Showing %d of %d snapshots.", maxFields, len(res.Snapshots)))
	}
	if res.Pruned > 0 {
		footer = append(footer, fmt.Sprintf("Removed %d entries that could not be found.", res.Pruned))
	}
	footer = append(footer, res.Warnings...)
	if len(footer) > 0 {
		e.Footer = &disgord.EmbedFooter{Text: strings.Join(footer, " ")}
	}
	return e
}
