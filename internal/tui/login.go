package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// Mode selects what a credential submission does.
type Mode string

const (
	// ModeSignIn signs in with an existing account.
	ModeSignIn Mode = "sign_in"
	// ModeBootstrap creates the first administrator and signs in as it.
	ModeBootstrap Mode = "bootstrap"
)

// Title is the form heading for the mode.
func (m Mode) Title() string {
	if m == ModeBootstrap {
		return "Create the first administrator"
	}
	return "Sign in to the storefront admin"
}

// Credentials is what the terminal form collects.
type Credentials struct {
	Mode       Mode
	Identifier string
	Secret     string
}

// LoginOptions configures PromptCredentials.
type LoginOptions struct {
	Mode       Mode
	Identifier string // Prefilled identifier, e.g. after a failed attempt
	ShowSecret bool   // Echo the secret while typing
}

// ErrAborted is returned when the user cancels the form.
var ErrAborted = errors.New("login cancelled")

// EchoMode returns how the secret field echoes input.
func EchoMode(show bool) huh.EchoMode {
	if show {
		return huh.EchoModeNormal
	}
	return huh.EchoModePassword
}

// NewLoginForm builds the credential form and binds it to creds.
// The identifier is checked for shape only; the directory has the final say.
func NewLoginForm(opts LoginOptions, creds *Credentials) *huh.Form {
	if opts.Mode == "" {
		opts.Mode = ModeSignIn
	}
	creds.Mode = opts.Mode
	creds.Identifier = opts.Identifier

	secretDesc := ""
	if opts.Mode == ModeBootstrap {
		secretDesc = fmt.Sprintf("At least %d characters", domainauth.MinSecretLength)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&creds.Identifier).
				Validate(func(s string) error {
					if domainauth.NormalizeIdentifier(s) == "" {
						return errors.New("email is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				Description(secretDesc).
				EchoMode(EchoMode(opts.ShowSecret)).
				Value(&creds.Secret),
		).Title(opts.Mode.Title()),
	)
}

// PromptCredentials runs the credential form on the terminal.
func PromptCredentials(opts LoginOptions) (Credentials, error) {
	var creds Credentials
	if err := NewLoginForm(opts, &creds).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Credentials{}, ErrAborted
		}
		return Credentials{}, fmt.Errorf("prompt failed: %w", err)
	}
	return creds, nil
}

// RunWithSpinner shows title while action runs and returns its error.
func RunWithSpinner(ctx context.Context, title string, action func(context.Context) error) error {
	var actionErr error
	err := spinner.New().
		Title(title).
		Context(ctx).
		Action(func() { actionErr = action(ctx) }).
		Run()
	if err != nil {
		return err
	}
	return actionErr
}

// SubmitTitle is the spinner text while a submission is in flight.
func SubmitTitle(mode Mode) string {
	if mode == ModeBootstrap {
		return "Creating administrator..."
	}
	return "Signing in..."
}
