package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type bookingsState int

const (
	bookingsStateBrowse bookingsState = iota
	bookingsStateCancel
)

var bookingStatusFilters = []booking.Status{
	"",
	booking.StatusPending,
	booking.StatusAccepted,
	booking.StatusCancelling,
	booking.StatusCompleted,
	booking.StatusCancelled,
	booking.StatusRejected,
}

// BookingsModel is the booking monitor: it lists bookings by status and lets the operator
// cancel a booking or run the expiry sweep on demand.
type BookingsModel struct {
	svc      *booking.Service
	operator booking.Actor

	state    bookingsState
	table    table.Model
	bookings []*booking.Booking
	form     *huh.Form

	filterIdx int
	loading   bool
	err       error
	status    string

	formReason  string
	formConfirm bool
}

func NewBookingsModel(svc *booking.Service, operatorID uuid.UUID) BookingsModel {
	return BookingsModel{
		svc:      svc,
		operator: booking.Actor{ID: operatorID, Role: profile.RoleAdmin},
		table: newTable([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Status", Width: 12},
			{Title: "Payment", Width: 15},
			{Title: "Total", Width: 14},
			{Title: "Earnings", Width: 14},
			{Title: "Scheduled", Width: 17},
			{Title: "Expires", Width: 17},
		}),
		loading: true,
	}
}

func (m BookingsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BookingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBookingsMsg:
		m.loading = false
		m.err = msg.err
		m.bookings = msg.bookings
		m.refreshTable()

		return m, nil

	case bookingActionMsg:
		m.status = msg.text
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		}

		m.state = bookingsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == bookingsStateCancel {
		return m.updateCancel(msg)
	}

	return m.updateBrowse(msg)
}

func (m BookingsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.filterIdx = (m.filterIdx + 1) % len(bookingStatusFilters)
			m.loading = true

			return m, m.loadCmd()
		case "x":
			return m, m.sweepCmd()
		case "c":
			return m.enterCancel()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m BookingsModel) selected() *booking.Booking {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.bookings) {
		return nil
	}

	return m.bookings[idx]
}

func (m BookingsModel) enterCancel() (tea.Model, tea.Cmd) {
	b := m.selected()
	if b == nil {
		return m, nil
	}

	m.formReason = ""
	m.formConfirm = false

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("reason").
				Title("Reason").
				Value(&m.formReason).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("reason cannot be empty")
					}
					return nil
				}),

			huh.NewConfirm().
				Key("confirm").
				Title(fmt.Sprintf("Cancel booking of %s?", FormatLeones(b.TotalPrice))).
				Affirmative("Cancel booking").
				Negative("Keep").
				Value(&m.formConfirm),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = bookingsStateCancel
	m.table.Blur()

	return m, m.form.Init()
}

func (m BookingsModel) updateCancel(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = bookingsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !m.formConfirm {
		return m, func() tea.Msg { return bookingActionMsg{text: "Cancellation aborted"} }
	}

	return m, m.cancelCmd()
}

func (m BookingsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading bookings...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	label := "All"
	if s := bookingStatusFilters[m.filterIdx]; s != "" {
		label = string(s)
	}

	header := fmt.Sprintf("Booking Monitor | [s] Status: %s | [c] cancel | [x] expire due | [r] refresh | Esc: back", activeStyle(label))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == bookingsStateCancel && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render("Cancel Booking\n\n" + m.form.View())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *BookingsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.bookings))

	for _, b := range m.bookings {
		expires := ""
		if b.Status == booking.StatusPending {
			expires = FormatTime(b.RequestExpiresAt)
		}

		rows = append(rows, table.Row{
			shortID(b.ID.String()),
			string(b.Status),
			string(b.PaymentStatus),
			FormatLeones(b.TotalPrice),
			FormatLeones(b.CameramanEarnings),
			FormatTime(b.ScheduledAt),
			expires,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadBookingsMsg struct {
	bookings []*booking.Booking
	err      error
}

type bookingActionMsg struct {
	text string
	err  error
}

func (m BookingsModel) loadCmd() tea.Cmd {
	filter := booking.ListFilter{Limit: 200}
	if s := bookingStatusFilters[m.filterIdx]; s != "" {
		filter.Status = &s
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		bookings, err := m.svc.List(ctx, filter)

		return loadBookingsMsg{bookings: bookings, err: err}
	}
}

func (m BookingsModel) sweepCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		n, err := m.svc.SweepExpired(ctx)

		return bookingActionMsg{text: fmt.Sprintf("Expired %d booking request(s)", n), err: err}
	}
}

func (m BookingsModel) cancelCmd() tea.Cmd {
	b := m.selected()
	if b == nil {
		return nil
	}

	id := b.ID
	reason := strings.TrimSpace(m.formReason)

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := m.svc.Cancel(ctx, id, m.operator, reason)
		if err != nil {
			return bookingActionMsg{err: err}
		}

		status, paymentStatus := updated.Reported()

		return bookingActionMsg{text: fmt.Sprintf("Booking %s is now %s (%s)", shortID(id.String()), status, paymentStatus)}
	}
}
