package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/TECXBOY/SnapMe/internal/wallet"
)

type payoutsState int

const (
	payoutsStateBrowse payoutsState = iota
	payoutsStateFail
)

var payoutStatusFilters = []wallet.PayoutStatus{
	wallet.PayoutPending,
	wallet.PayoutProcessing,
	wallet.PayoutFailed,
	wallet.PayoutCompleted,
	"",
}

// PayoutsModel manages withdrawals: send a pending payout to the provider or fail it with a
// reason, which credits the amount back to the cameraman.
type PayoutsModel struct {
	svc *wallet.Service

	state   payoutsState
	table   table.Model
	payouts []*wallet.Payout
	form    *huh.Form

	filterIdx int
	loading   bool
	err       error
	status    string

	formReason string
}

func NewPayoutsModel(svc *wallet.Service) PayoutsModel {
	return PayoutsModel{
		svc: svc,
		table: newTable([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Cameraman", Width: 10},
			{Title: "Amount", Width: 14},
			{Title: "Number", Width: 14},
			{Title: "Status", Width: 11},
			{Title: "Requested", Width: 17},
			{Title: "Detail", Width: 30},
		}),
		loading: true,
	}
}

func (m PayoutsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m PayoutsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadPayoutsMsg:
		m.loading = false
		m.err = msg.err
		m.payouts = msg.payouts
		m.refreshTable()

		return m, nil

	case payoutActionMsg:
		m.status = msg.text
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		}

		m.state = payoutsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == payoutsStateFail {
		return m.updateFail(msg)
	}

	return m.updateBrowse(msg)
}

func (m PayoutsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.filterIdx = (m.filterIdx + 1) % len(payoutStatusFilters)
			m.loading = true

			return m, m.loadCmd()
		case "p":
			return m, m.processCmd()
		case "a":
			return m, m.processAllCmd()
		case "f":
			return m.enterFail()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PayoutsModel) selected() *wallet.Payout {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.payouts) {
		return nil
	}

	return m.payouts[idx]
}

func (m PayoutsModel) enterFail() (tea.Model, tea.Cmd) {
	if m.selected() == nil {
		return m, nil
	}

	m.formReason = ""

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("reason").
				Title("Failure reason").
				Placeholder("e.g. number not registered for Orange Money").
				Value(&m.formReason).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("reason cannot be empty")
					}
					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = payoutsStateFail
	m.table.Blur()

	return m, m.form.Init()
}

func (m PayoutsModel) updateFail(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = payoutsStateBrowse
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

	return m, m.failCmd()
}

func (m PayoutsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading payouts...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	label := "All"
	if s := payoutStatusFilters[m.filterIdx]; s != "" {
		label = string(s)
	}

	var total int64
	for _, p := range m.payouts {
		total += p.Amount
	}

	header := fmt.Sprintf("Payouts | [s] Status: %s | Total: %s | [p] process | [a] process all pending | [f] fail | Esc: back",
		activeStyle(label), FormatLeones(total))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == payoutsStateFail && m.form != nil {
		p := m.selected()
		amount := ""
		if p != nil {
			amount = FormatLeones(p.Amount)
		}

		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("Fail Payout\n\n%s will be credited back.\n\n%s", amount, m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *PayoutsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.payouts))

	for _, p := range m.payouts {
		detail := p.ExternalID
		if p.FailureReason != "" {
			detail = p.FailureReason
		}

		rows = append(rows, table.Row{
			shortID(p.ID.String()),
			shortID(p.CameramanID.String()),
			FormatLeones(p.Amount),
			p.OrangeMoneyNumber,
			string(p.Status),
			FormatTime(p.RequestedAt),
			detail,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadPayoutsMsg struct {
	payouts []*wallet.Payout
	err     error
}

type payoutActionMsg struct {
	text string
	err  error
}

func (m PayoutsModel) loadCmd() tea.Cmd {
	filter := wallet.PayoutFilter{Limit: 200}
	if s := payoutStatusFilters[m.filterIdx]; s != "" {
		filter.Status = &s
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		payouts, err := m.svc.Payouts(ctx, filter)

		return loadPayoutsMsg{payouts: payouts, err: err}
	}
}

func (m PayoutsModel) processCmd() tea.Cmd {
	p := m.selected()
	if p == nil {
		return nil
	}

	id := p.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := m.svc.ProcessPayout(ctx, id)
		if err != nil {
			return payoutActionMsg{err: err}
		}

		return payoutActionMsg{text: fmt.Sprintf("Payout %s is %s", shortID(id.String()), updated.Status)}
	}
}

func (m PayoutsModel) processAllCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		n, err := m.svc.ProcessPending(ctx)

		return payoutActionMsg{text: fmt.Sprintf("Processed %d payout(s)", n), err: err}
	}
}

func (m PayoutsModel) failCmd() tea.Cmd {
	p := m.selected()
	if p == nil {
		return nil
	}

	id := p.ID
	reason := strings.TrimSpace(m.formReason)

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.svc.FailPayout(ctx, id, reason); err != nil {
			return payoutActionMsg{err: err}
		}

		return payoutActionMsg{text: fmt.Sprintf("Payout %s failed and reversed", shortID(id.String()))}
	}
}
