package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/TECXBOY/SnapMe/cmd/console/internal/view"
	"github.com/TECXBOY/SnapMe/internal/app"
	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/config"
	"github.com/TECXBOY/SnapMe/internal/wallet"
)

type model struct {
	bookingService *booking.Service
	walletService  *wallet.Service
	operatorID     uuid.UUID

	currentView View

	bookingsView view.BookingsModel
	payoutsView  view.PayoutsModel
}

type View int

const (
	ViewMenu     View = 0
	ViewBookings View = 1
	ViewPayouts  View = 2
)

func initialModel(a *app.App) model {
	return model{
		bookingService: a.Bookings,
		walletService:  a.Wallet,
		operatorID:     a.Config.Console.OperatorID,
		currentView:    ViewMenu,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewBookings
				m.bookingsView = view.NewBookingsModel(m.bookingService, m.operatorID)

				return m, m.bookingsView.Init()
			case "2":
				m.currentView = ViewPayouts
				m.payoutsView = view.NewPayoutsModel(m.walletService)

				return m, m.payoutsView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewBookings:
		var newModel tea.Model
		newModel, cmd = m.bookingsView.Update(msg)
		m.bookingsView = newModel.(view.BookingsModel)
	case ViewPayouts:
		var newModel tea.Model
		newModel, cmd = m.payoutsView.Update(msg)
		m.payoutsView = newModel.(view.PayoutsModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"SnapMe Operator Console\n\n" +
				"1. Booking Monitor\n" +
				"2. Payouts\n\n" +
				"q. Quit",
		)
	case ViewBookings:
		return m.bookingsView.View()
	case ViewPayouts:
		return m.payoutsView.View()
	}

	return "Unknown View"
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Console.OperatorID == uuid.Nil {
		slog.Error("CONSOLE_OPERATOR_ID is required")
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	p := tea.NewProgram(initialModel(a), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run console", "error", err)
		os.Exit(1)
	}
}
