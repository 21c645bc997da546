package ui

import (
	"context"
	"fmt"
	"time"

	"neuralchat/client/protocol"

	"github.com/rs/zerolog/log"
)

// latency eases the displayed round trip toward the last measurement.
type latency struct {
	current int // ms
	target  int // ms
}

func (l *latency) setTarget(rtt time.Duration) {
	ms := int(rtt.Milliseconds())
	if ms < 1 && rtt > 0 {
		ms = 1
	}
	l.target = ms
}

// step moves current a quarter of the way to target, at least 1 ms.
func (l *latency) step() int {
	diff := l.target - l.current
	switch {
	case diff > 0:
		l.current += max(1, diff/4)
	case diff < 0:
		l.current -= max(1, -diff/4)
	}
	return l.current
}

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	if client := a.currentClient(); client != nil {
		a.connectionView.SetText(fmt.Sprintf("[green]● Connected to %s[-] [gray]│ Latency: %dms │ Last ping: %s ago[-]",
			a.cfg.Server, a.latency.current, formatDuration(client.LastPongTime())))
	} else {
		a.connectionView.SetText(fmt.Sprintf("[red]○ Disconnected from %s[-]", a.cfg.Server))
	}
}

func (a *App) startStatusTicker() {
	if a.statusTicker != nil {
		return
	}
	a.statusTickerDone = make(chan struct{})
	a.statusTicker = time.NewTicker(1 * time.Second)
	go func() {
		ticks := 0
		for {
			select {
			case <-a.statusTickerDone:
				return
			case <-a.statusTicker.C:
				ticks++
				client := a.currentClient()
				if client != nil && ticks%10 == 0 {
					client.Ping()
				}
				a.app.QueueUpdateDraw(func() {
					if client != nil {
						a.latency.setTarget(client.RTT())
						a.latency.step()
					}
					a.updateConnectionStatus()
					if !a.flashUntil.IsZero() && time.Now().After(a.flashUntil) {
						a.flashUntil = time.Time{}
						a.updateStatusBarText()
					}
					a.updatePeersList() // Refresh last seen times
				})
			}
		}
	}()
}

func (a *App) stopStatusTicker() {
	if a.statusTicker != nil {
		a.statusTicker.Stop()
		close(a.statusTickerDone)
		a.statusTicker = nil
	}
}

func (a *App) setConnectionError(err string) {
	if a.connectionView == nil {
		return
	}
	a.connectionView.SetText(fmt.Sprintf("[red]✗ Error: %s[-]", err))
}

func (a *App) updateStatusBarText() {
	if a.statusBar == nil {
		return
	}
	if a.currentClient() != nil {
		a.statusBar.SetText(" F1:Help | F2:Attach | F3:Rename | F4:Search | F5:Refresh | F6:Disconnect | F7:Settings | F10:Quit ")
	} else {
		a.statusBar.SetText(" F1:Help | F6:Connect | F7:Settings | F10:Quit ")
	}
}

func (a *App) toggleConnection() {
	if a.currentClient() != nil {
		a.showDisconnectDialog()
		return
	}
	a.connectionView.SetText("[yellow]Connecting...[-]")
	go a.reconnect(a.self.Username)
}

func (a *App) disconnect() {
	a.connectionView.SetText("[yellow]Disconnecting...[-]")
	a.endSession()
	a.latency = latency{}
	a.resetPresence()
	a.updateConnectionStatus()
	a.updateStatusBarText()
}

func (a *App) reconnect(username string) {
	a.mu.Lock()
	if a.connecting {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	password := a.password
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
	}()

	client := protocol.NewClient(a.cfg.RequestTimeout())
	if err := client.Connect(a.cfg.Server); err != nil {
		a.app.QueueUpdateDraw(func() {
			a.setConnectionError(fmt.Sprintf("Connection failed: %v", err))
			a.updateStatusBarText()
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout())
	defer cancel()

	session, err := client.Auth(ctx, username, password)
	if err != nil {
		client.Disconnect()
		a.app.QueueUpdateDraw(func() {
			a.setConnectionError(protocol.Reason(err))
			a.updateStatusBarText()
		})
		return
	}

	a.app.QueueUpdateDraw(func() {
		a.showMainScreen(session)
	})
	if err := a.startSession(client, session, password); err != nil {
		log.Error().Err(err).Msg("restart session")
		a.app.QueueUpdateDraw(func() {
			a.setConnectionError(protocol.Reason(err))
		})
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.updateConnectionStatus()
		a.updateStatusBarText()
	})
}
