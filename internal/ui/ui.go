package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/formatter"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/orchestrator"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/desertthunder/upsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	LoginView
	ListView
	DetailView
)

// tabs are the list filters in display order.
var tabs = append([]status.Category{status.All}, status.Categories...)

// Options wires the dashboard to the running client.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Updates      <-chan tasks.Update      // the registry's update channel
	PageSize     int                      // tasks per page
	ScanURL      func(code string) string // content encoded in the QR code
	OpenBrowser  func(url string) error
	Logger       *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	orch        *orchestrator.Orchestrator
	updates     <-chan tasks.Update
	events      chan auth.Event
	unsubscribe func()
	scanURL     func(string) string
	openBrowser func(string) error
	logger      *log.Logger

	view   ViewState
	width  int
	height int

	pager    *tasks.Pager
	page     tasks.Page
	counts   map[status.Category]int
	taskList list.Model

	detail   *models.TaskDetail
	stepList list.Model

	challenge *models.AuthChallenge
	qr        string
	loginGen  int
	loggingIn bool
	loginErr  error

	message  string
	failed   bool
	busy     bool
	showHelp bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates the dashboard. The model subscribes to the orchestrator's auth session until
// [Model.Close] is called.
func NewModel(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:         ctx,
		orch:        opts.Orchestrator,
		updates:     opts.Updates,
		events:      make(chan auth.Event, 16),
		scanURL:     opts.ScanURL,
		openBrowser: opts.OpenBrowser,
		logger:      opts.Logger,
		view:        LoadingView,
		pager:       tasks.NewPager(opts.PageSize),
		counts:      map[status.Category]int{},
		taskList:    newList("Tasks"),
		stepList:    newList("Steps"),
		spinner:     spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		help:        help.New(),
		keys:        newKeyMap(),
	}
	if m.logger == nil {
		m.logger = shared.NewDiscardLogger()
	}
	if m.scanURL == nil {
		m.scanURL = func(code string) string { return code }
	}

	m.unsubscribe = m.orch.Session().Subscribe(func(e auth.Event) {
		select {
		case m.events <- e:
		default:
		}
	})
	return m
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowPagination(false)
	l.SetShowHelp(false)
	return l
}

// Close drops the auth subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the orchestrator and begins listening for auth events and registry updates.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.start(), m.waitForAuthEvent(), m.waitForUpdate(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-10)
		m.stepList.SetSize(msg.Width-4, msg.Height-14)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.help) {
			m.showHelp = !m.showHelp
			return m, nil
		}
		switch m.view {
		case LoginView, LoadingView:
			return m.handleLoginKeys(msg)
		case ListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStarted:
		if err := asError(msg); err != nil {
			m.setMessage(fmt.Sprintf("Could not reach the server: %v", err), true)
		}
		if m.orch.LoggedIn() {
			m.view = ListView
			m.syncList()
			return m, nil
		}
		m.view = LoginView
		return m, m.login()

	case MsgAuthEvent:
		m.applyAuthEvent(msg.data.(auth.Event))
		return m, m.waitForAuthEvent()

	case MsgRegistryUpdate:
		u := msg.data.(tasks.Update)
		m.setMessage(u.Message, u.Failed())
		switch u.Phase {
		case tasks.RefreshCompleted, tasks.Cleared:
			m.busy = false
			m.syncList()
		case tasks.RefreshFailed:
			m.busy = false
		}
		return m, m.waitForUpdate()

	case MsgLoginDone:
		res := msg.data.(loginResult)
		if res.gen != m.loginGen {
			return m, nil
		}
		m.loggingIn = false
		if res.err != nil {
			if !errors.Is(res.err, shared.ErrHandshakeCanceled) {
				m.loginErr = res.err
			}
			return m, nil
		}
		m.view = ListView
		m.setMessage(fmt.Sprintf("Signed in as %s", res.identity.DisplayName), false)
		m.syncList()
		return m, nil

	case MsgLogoutDone:
		m.detail = nil
		m.pager.SetFilter(status.All)
		m.syncList()
		m.view = LoginView
		if err := asError(msg); err != nil {
			m.setMessage(fmt.Sprintf("Signed out, cache not cleared: %v", err), true)
		} else {
			m.setMessage("Signed out", false)
		}
		return m, m.login()

	case MsgDetailFetched:
		res := msg.data.(result[*models.TaskDetail])
		m.busy = false
		if res.err != nil {
			m.setMessage(fmt.Sprintf("Could not load task: %v", res.err), true)
			return m, nil
		}
		m.detail = res.value
		idx := m.stepList.Index()
		m.stepList.Title = res.value.Title
		m.stepList.SetItems(stepItems(res.value.Steps))
		if idx < len(res.value.Steps) {
			m.stepList.Select(idx)
		}
		m.view = DetailView
		return m, nil

	case MsgCommandDone:
		res := msg.data.(result[string])
		if res.err != nil {
			m.setMessage(res.err.Error(), true)
		}
		return m, m.fetchDetail(res.value)
	}
	return m, nil
}

func (m *Model) applyAuthEvent(e auth.Event) {
	switch e.Kind {
	case auth.EventChallengeIssued:
		m.challenge = e.Challenge
		m.loginErr = nil
		qr, err := RenderQR(m.scanURL(e.Challenge.ChallengeID))
		if err != nil {
			m.logger.Warn("failed to render QR code", "error", err)
			qr = ""
		}
		m.qr = qr
	case auth.EventExpired, auth.EventFailed:
		m.loginErr = e.Err
	case auth.EventLoginSucceeded:
		m.challenge = nil
		m.qr = ""
	}
}

func (m *Model) handleLoginKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.regenerate):
		if m.view == LoginView {
			return m, m.login()
		}
	case key.Matches(msg, m.keys.open):
		if m.challenge != nil && m.openBrowser != nil {
			if err := m.openBrowser(m.challenge.PresentationPayload); err != nil {
				m.setMessage(fmt.Sprintf("Could not open browser: %v", err), true)
			}
		}
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.nextTab):
		m.switchTab(1)
		return m, nil
	case key.Matches(msg, m.keys.prevTab):
		m.switchTab(-1)
		return m, nil
	case key.Matches(msg, m.keys.nextPage):
		if m.pager.Next(m.page.Total) {
			m.syncList()
		}
		return m, nil
	case key.Matches(msg, m.keys.prevPage):
		if m.pager.Prev(m.page.Total) {
			m.syncList()
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.taskList.SelectedItem().(taskItem); ok {
			m.stepList.ResetSelected()
			return m, m.fetchDetail(item.task.TaskID)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail == nil {
		m.view = ListView
		return m, nil
	}
	id := m.detail.TaskID

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ListView
		m.detail = nil
		return m, nil
	case key.Matches(msg, m.keys.retry):
		item, ok := m.stepList.SelectedItem().(stepItem)
		if !ok {
			return m, nil
		}
		if !item.step.Retryable {
			m.setMessage(fmt.Sprintf("%s cannot be retried", status.StepLabel(item.step.StepName)), true)
			return m, nil
		}
		return m, m.retry(id, item.step.StepName)
	case key.Matches(msg, m.keys.video):
		return m, m.trigger(id, status.TriggerVideo)
	case key.Matches(msg, m.keys.subtitle):
		return m, m.trigger(id, status.TriggerSubtitle)
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchDetail(id)
	case key.Matches(msg, m.keys.open):
		if m.detail.SourceURL != "" && m.openBrowser != nil {
			if err := m.openBrowser(m.detail.SourceURL); err != nil {
				m.setMessage(fmt.Sprintf("Could not open browser: %v", err), true)
			}
		}
		return m, nil
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.stepList, cmd = m.stepList.Update(msg)
	return m, cmd
}

func (m *Model) switchTab(delta int) {
	idx := 0
	for i, c := range tabs {
		if c == m.pager.Filter() {
			idx = i
		}
	}
	idx = (idx + delta + len(tabs)) % len(tabs)
	m.pager.SetFilter(tabs[idx])
	m.taskList.ResetSelected()
	m.syncList()
}

// syncList re-renders the current page from a fresh registry snapshot.
func (m *Model) syncList() {
	snapshot := m.orch.Registry().Snapshot()
	m.counts = tasks.Counts(snapshot)
	m.page = m.pager.View(snapshot)
	m.taskList.Title = fmt.Sprintf("%s tasks", formatter.CategoryTitle(m.page.Filter))
	m.taskList.SetItems(taskItems(m.page.Items))
}

func (m *Model) setMessage(s string, failed bool) {
	m.message = s
	m.failed = failed
}

func (m *Model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg(m.orch.Start(m.ctx))
	}
}

func (m *Model) login() tea.Cmd {
	m.loginGen++
	gen := m.loginGen
	m.loggingIn = true
	m.loginErr = nil
	m.challenge = nil
	m.qr = ""

	return func() tea.Msg {
		identity, err := m.orch.Login(m.ctx)
		return loginDoneMsg(gen, identity, err)
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		return logoutDoneMsg(m.orch.Logout(m.ctx))
	}
}

func (m *Model) refresh() tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		if err := m.orch.Refresh(m.ctx); err != nil {
			m.logger.Debug("manual refresh failed", "error", err)
		}
		return nil
	}
}

func (m *Model) fetchDetail(taskID string) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		detail, err := m.orch.Registry().FetchDetail(m.ctx, taskID)
		return detailFetchedMsg(detail, err)
	}
}

func (m *Model) retry(taskID, step string) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg(taskID, m.orch.Registry().RetryStep(m.ctx, taskID, step))
	}
}

func (m *Model) trigger(taskID string, trigger status.Trigger) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg(taskID, m.orch.Registry().TriggerStage(m.ctx, taskID, trigger))
	}
}

func (m *Model) waitForAuthEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-m.events:
			return authEventMsg(e)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case u, ok := <-m.updates:
			if !ok {
				return nil
			}
			return registryUpdateMsg(u)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case LoadingView:
		body = fmt.Sprintf("%s Connecting...", m.spinner.View())
	case LoginView:
		body = m.renderLogin()
	case ListView:
		body = m.renderList()
	case DetailView:
		body = m.renderDetail()
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderFooter())
}

func (m *Model) renderHeader() string {
	title := styles.title.Render("upsync")
	if id := m.orch.Identity(); id != nil {
		title = fmt.Sprintf("%s  %s", title, styles.ok.Render(id.DisplayName))
	}
	if m.busy {
		title = fmt.Sprintf("%s %s", title, m.spinner.View())
	}
	return title
}

func (m *Model) renderFooter() string {
	var parts []string
	if m.message != "" {
		if m.failed {
			parts = append(parts, styles.err.Render(m.message))
		} else {
			parts = append(parts, styles.help.Render(m.message))
		}
	}

	if m.showHelp {
		parts = append(parts, m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		parts = append(parts, m.help.ShortHelpView(m.contextKeys()))
	}
	return "\n" + strings.Join(parts, "\n")
}

func (m *Model) contextKeys() []key.Binding {
	switch m.view {
	case LoginView:
		return []key.Binding{m.keys.regenerate, m.keys.open, m.keys.help, m.keys.quit}
	case ListView:
		return []key.Binding{m.keys.enter, m.keys.nextTab, m.keys.nextPage, m.keys.refresh, m.keys.logout, m.keys.help, m.keys.quit}
	case DetailView:
		return []key.Binding{m.keys.retry, m.keys.video, m.keys.subtitle, m.keys.refresh, m.keys.back, m.keys.help}
	default:
		return []key.Binding{m.keys.quit}
	}
}

func (m *Model) renderLogin() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Sign in with the Bilibili app"))
	b.WriteString("\n")

	switch {
	case m.loginErr != nil && errors.Is(m.loginErr, shared.ErrChallengeExpired):
		b.WriteString(styles.warn.Render("The QR code expired. Press g for a new one."))
	case m.loginErr != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("Login failed: %v", m.loginErr)))
		b.WriteString("\n")
		b.WriteString(styles.help.Render("Press g to try again."))
	case m.challenge == nil:
		b.WriteString(fmt.Sprintf("%s Requesting QR code...", m.spinner.View()))
	default:
		if m.qr != "" {
			b.WriteString(m.qr)
			b.WriteString("\n\n")
		}
		b.WriteString("Scan the code with the Bilibili app and confirm the login.\n")
		b.WriteString(styles.help.Render(m.challenge.PresentationPayload))
		if m.loggingIn {
			b.WriteString(fmt.Sprintf("\n%s Waiting for confirmation...", m.spinner.View()))
		}
	}

	return styles.box.Render(b.String())
}

func (m *Model) renderTabs() string {
	parts := make([]string, len(tabs))
	for i, c := range tabs {
		label := fmt.Sprintf("%s (%d)", formatter.CategoryTitle(c), m.counts[c])
		if c == m.pager.Filter() {
			parts[i] = styles.activeTab.Render(label)
		} else {
			parts[i] = styles.tab.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderList() string {
	var body string
	if len(m.page.Items) == 0 {
		body = styles.help.Render(fmt.Sprintf("\nNo %s tasks.\n", strings.ToLower(formatter.CategoryTitle(m.page.Filter))))
	} else {
		body = m.taskList.View()
	}

	pageInfo := styles.help.Render(fmt.Sprintf("Page %d of %d • %d tasks", m.page.Page, m.page.Pages, m.page.Total))
	if at := m.orch.Registry().FetchedAt(); !at.IsZero() {
		pageInfo += styles.help.Render(fmt.Sprintf(" • updated %s", at.Local().Format("15:04:05")))
	}
	return fmt.Sprintf("%s\n%s\n%s", m.renderTabs(), body, pageInfo)
}

func (m *Model) renderDetail() string {
	d := m.detail
	if d == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", styles.ok.Render("#"+d.TaskID), badge(d.StatusCode))
	if desc := status.Classify(d.StatusCode).Description; desc != "" {
		b.WriteString(styles.help.Render(desc))
		b.WriteString("\n")
	}
	if d.GeneratedName != "" {
		fmt.Fprintf(&b, "Upload name: %s\n", d.GeneratedName)
	}
	if d.ExternalResultRef != "" {
		fmt.Fprintf(&b, "Uploaded as: %s\n", d.ExternalResultRef)
	}
	if p := d.Progress; p.TotalSteps > 0 {
		fmt.Fprintf(&b, "%s %.0f%% (%d/%d)\n", formatter.ProgressBar(p.Percentage, 30), p.Percentage, p.CompletedSteps, p.TotalSteps)
	}

	var triggers []string
	for _, t := range status.AllowedTriggers(d.StatusCode) {
		triggers = append(triggers, string(t))
	}
	if len(triggers) > 0 {
		b.WriteString(styles.warn.Render(fmt.Sprintf("Manual upload available: %s", strings.Join(triggers, ", "))))
		b.WriteString("\n")
	}

	return fmt.Sprintf("%s\n%s", b.String(), m.stepList.View())
}
