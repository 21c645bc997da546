package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"neuralchat/client/protocol"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	maxAttempts     = 3
	lockoutDuration = 30 * time.Second
)

// lockout counts failed sign-ins and locks the form after maxAttempts.
type lockout struct {
	failures int
	until    time.Time
}

// remaining is how long the form stays locked, zero when open.
func (l *lockout) remaining(now time.Time) time.Duration {
	if now.Before(l.until) {
		return l.until.Sub(now)
	}
	return 0
}

// fail records a failure. It returns the attempts left, or locked=true when
// this failure started a lockout.
func (l *lockout) fail(now time.Time) (left int, locked bool) {
	l.failures++
	if l.failures >= maxAttempts {
		l.failures = 0
		l.until = now.Add(lockoutDuration)
		return 0, true
	}
	return maxAttempts - l.failures, false
}

func (l *lockout) reset() {
	l.failures = 0
	l.until = time.Time{}
}

func (a *App) showAuthDialog() {
	// Form container
	form := tview.NewForm()
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorBar)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(" NEURAL TERMINAL :: ACCESS ")
	form.SetTitleColor(ColorTitle)

	var loginField, passwordField *tview.InputField
	var statusText *tview.TextView

	statusText = tview.NewTextView()
	statusText.SetBackgroundColor(ColorBg)
	statusText.SetTextColor(tcell.ColorRed)
	statusText.SetTextAlign(tview.AlignCenter)
	statusText.SetDynamicColors(true)

	loginField = tview.NewInputField()
	loginField.SetLabel("Username: ")
	loginField.SetFieldWidth(30)
	loginField.SetBackgroundColor(ColorBg)

	passwordField = tview.NewInputField()
	passwordField.SetLabel("Password: ")
	passwordField.SetFieldWidth(30)
	passwordField.SetMaskCharacter('*')
	passwordField.SetBackgroundColor(ColorBg)

	form.AddFormItem(loginField)
	form.AddFormItem(passwordField)

	submit := func(register bool) {
		if left := a.lock.remaining(time.Now()); left > 0 {
			statusText.SetText(fmt.Sprintf("[red]> TERMINAL LOCKED (%ds)[-]", int(left.Seconds()+0.5)))
			return
		}
		login := strings.TrimSpace(loginField.GetText())
		password := passwordField.GetText()
		if login == "" || password == "" {
			statusText.SetText("[red]Please enter username and password[-]")
			return
		}
		a.doAuth(login, password, statusText, register)
	}

	form.AddButton("Login", func() { submit(false) })
	form.AddButton("Register", func() { submit(true) })
	form.AddButton("Quit", func() {
		a.app.Stop()
	})

	// Center the form
	formFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(statusText, 2, 0, false)

	// Create modal-like container
	width := 56
	height := 13

	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(formFlex, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("auth", modal, true, true)
	a.app.SetFocus(form)
}

func (a *App) doAuth(login, password string, statusText *tview.TextView, register bool) {
	a.mu.Lock()
	if a.connecting {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	a.mu.Unlock()

	statusText.SetText("Initializing secure node...")

	// Run connection in goroutine to avoid blocking UI
	go func() {
		defer func() {
			a.mu.Lock()
			a.connecting = false
			a.mu.Unlock()
		}()

		client := protocol.NewClient(a.cfg.RequestTimeout())
		if err := client.Connect(a.cfg.Server); err != nil {
			log.Error().Err(err).Str("server", a.cfg.Server).Msg("connect")
			a.app.QueueUpdateDraw(func() {
				statusText.SetText(fmt.Sprintf("Connection failed: %v", err))
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*a.cfg.RequestTimeout())
		defer cancel()

		if register {
			a.app.QueueUpdateDraw(func() {
				statusText.SetText("Registering...")
			})
			if _, err := client.Register(ctx, login, password); err != nil {
				client.Disconnect()
				a.app.QueueUpdateDraw(func() {
					statusText.SetText("[red]" + tview.Escape(protocol.Reason(err)) + "[-]")
				})
				return
			}
		}

		a.app.QueueUpdateDraw(func() {
			statusText.SetText("Validating credentials...")
		})

		session, err := client.Auth(ctx, login, password)
		if err != nil {
			client.Disconnect()
			var reqErr *protocol.RequestError
			denied := errors.As(err, &reqErr)
			a.app.QueueUpdateDraw(func() {
				if !denied {
					statusText.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
					return
				}
				a.authFailed(statusText)
			})
			return
		}

		log.Info().Str("user", session.Username).Msg("signed in")
		a.app.QueueUpdateDraw(func() {
			a.lock.reset()
			a.showMainScreen(session)
		})
		if err := a.startSession(client, session, password); err != nil {
			log.Error().Err(err).Msg("start session")
			a.app.QueueUpdateDraw(func() {
				a.setConnectionError(protocol.Reason(err))
			})
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.updateConnectionStatus()
			a.updateStatusBarText()
		})
	}()
}

// authFailed counts a denied sign-in and runs the lockout countdown.
func (a *App) authFailed(statusText *tview.TextView) {
	left, locked := a.lock.fail(time.Now())
	if !locked {
		statusText.SetText(fmt.Sprintf("[red]> ACCESS DENIED[-]\n[yellow]> ATTEMPTS REMAINING: %d[-]", left))
		return
	}

	statusText.SetText(fmt.Sprintf("[red]> TOO MANY ATTEMPTS\n> TERMINAL LOCKED (%ds)[-]", int(lockoutDuration.Seconds())))
	until := a.lock.until
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for now := range ticker.C {
			left := until.Sub(now)
			a.app.QueueUpdateDraw(func() {
				if left > 0 {
					statusText.SetText(fmt.Sprintf("[red]> LOCKED (%ds)[-]", int(left.Seconds()+0.5)))
				} else {
					statusText.SetText("[gray]> LOCKOUT EXPIRED[-]")
				}
			})
			if left <= 0 {
				return
			}
		}
	}()
}
