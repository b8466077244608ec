package tui

import (
	"strings"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// RenderSession renders a session snapshot as a bordered status block.
func RenderSession(snap domainauth.Session) string {
	decision := domainauth.Decide(snap)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Storefront admin session"))
	b.WriteString("\n")

	switch decision {
	case domainauth.DecisionPending:
		b.WriteString(row("Status", pendingStyle.Render("resolving...")))
	case domainauth.DecisionDenied:
		b.WriteString(row("Status", hintStyle.Render("signed out")))
	case domainauth.DecisionAllowed:
		b.WriteString(row("Status", allowedStyle.Render("signed in")))
		b.WriteString("\n")
		b.WriteString(row("User", valueStyle.Render(snap.CurrentUser.Email)))
		b.WriteString("\n")
		b.WriteString(row("Capability", valueStyle.Render(string(snap.Capability))))
	}

	if snap.Error != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(snap.Error))
	}

	return boxStyle.Render(b.String())
}

// RenderError renders a user-facing failure message.
func RenderError(message string) string {
	return errorStyle.Render("Error: ") + message
}

// RenderHint renders secondary guidance, such as the bootstrap suggestion.
func RenderHint(message string) string {
	return hintStyle.Render(message)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}
