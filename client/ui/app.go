package ui

import (
	"context"
	"sync"
	"time"

	"neuralchat/client/chatsync"
	"neuralchat/client/protocol"
	"neuralchat/client/settings"
	"neuralchat/models"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

// App is the main application
type App struct {
	app    *tview.Application
	screen tcell.Screen
	pages  *tview.Pages
	cfg    settings.Config
	store  *settings.Store
	prefs  settings.Prefs

	// connection, guarded by mu
	mu         sync.RWMutex
	client     *protocol.Client
	chat       *chatsync.Synchronizer
	stopSync   context.CancelFunc
	session    protocol.Session
	password   string
	connecting bool

	// owned by the tview goroutine
	lock        lockout
	latency     latency
	self        models.Profile
	active      string
	peers       []chatsync.PeerView
	onlineCount int
	lines       []line
	headerState chatsync.UpdateHeader

	peersList      *tview.List
	header         *tview.TextView
	messagesView   *tview.TextView
	messageInput   *tview.InputField
	statusBar      *tview.TextView
	connectionView *tview.TextView
	mainFlex       *tview.Flex
	flashUntil     time.Time

	statusTicker     *time.Ticker
	statusTickerDone chan struct{}
	prefsWatcher     *settings.Watcher
}

// NewApp creates a new application instance
func NewApp(cfg settings.Config, store *settings.Store) *App {
	prefs, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("load prefs")
	}
	useTheme(prefs.Theme)
	return &App{
		cfg:    cfg,
		store:  store,
		prefs:  prefs,
		active: chatsync.Broadcast,
	}
}

// Run starts the application
func (a *App) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	a.screen = screen
	a.app = tview.NewApplication().SetScreen(screen)
	a.pages = tview.NewPages()

	// Create empty background
	background := tview.NewBox()
	background.SetBackgroundColor(ColorBg)
	a.pages.AddPage("background", background, true, true)

	if w, err := a.store.Watch(func(p settings.Prefs) {
		a.app.QueueUpdateDraw(func() { a.applyPrefs(p) })
	}); err != nil {
		log.Warn().Err(err).Msg("watch prefs")
	} else {
		a.prefsWatcher = w
	}

	// Show auth dialog on top
	a.showAuthDialog()

	err = a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
	a.shutdown()
	return err
}

// quit exits the application
func (a *App) quit() {
	a.app.Stop()
}

func (a *App) shutdown() {
	a.stopStatusTicker()
	if a.prefsWatcher != nil {
		a.prefsWatcher.Close()
	}
	a.endSession()
}

// currentClient returns the connected client, or nil.
func (a *App) currentClient() *protocol.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.client == nil || !a.client.IsConnected() {
		return nil
	}
	return a.client
}

func (a *App) currentChat() *chatsync.Synchronizer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chat
}
