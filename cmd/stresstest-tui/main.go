package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"stresstest-server/auth"
	"stresstest-server/client"
	"stresstest-server/dashboard"
	"stresstest-server/entities"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

const requestTimeout = 15 * time.Second

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	statStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

var badgeColors = map[entities.Status]string{
	entities.StatusPending:   "245",
	entities.StatusRunning:   "33",
	entities.StatusCompleted: "42",
	entities.StatusFailed:    "196",
}

func badge(s entities.Status) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color(badgeColors[s])).
		Padding(0, 1).
		Render(string(s))
}

type step int

const (
	stepEnteringUsername step = iota
	stepEnteringPassword
	stepLoggingIn
	stepList
	stepSearching
	stepForm
	stepConfirmDelete
)

// formField is one editable line of the add/edit form.
type formField struct {
	key   string
	label string
}

var formFields = []formField{
	{"serial_number", "Serial number"},
	{"imei", "IMEI"},
	{"software_version", "Software version"},
	{"status", "Status"},
	{"before_battery", "Battery before (%)"},
	{"after_battery", "Battery after (%)"},
	{"total_hours", "Total hours"},
	{"start_time", "Start time"},
	{"end_time", "End time"},
	{"remarks", "Remarks"},
	{"notes", "Notes"},
}

const timeLayout = "2006-01-02 15:04"

type model struct {
	step     step
	api      *client.Client
	session  *auth.Session
	dash     *dashboard.Dashboard
	username string
	password string
	input    string
	cursor   int
	message  string
	quitting bool

	form        *dashboard.Form
	fieldCursor int
	fieldValues map[string]string
	fieldErrors map[string]string
}

type loginMsg struct {
	result *auth.LoginResult
	err    error
}
type refreshedMsg struct{ err error }
type submitMsg struct {
	form   *dashboard.Form
	result dashboard.Result
	err    error
}
type versionsMsg struct {
	versions []string
	err      error
}
type actionMsg struct {
	verb   string
	result dashboard.Result
	err    error
}

func initialModel(serverURL, username string) model {
	api := client.New(serverURL)
	session := auth.NewSession()
	m := model{
		step:    stepEnteringUsername,
		api:     api,
		session: session,
		dash: dashboard.New(api, session, dashboard.Options{
			Validator: entities.NewValidator(entities.DefaultVersions),
		}),
	}
	if username != "" {
		m.username = username
		m.step = stepEnteringPassword
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

func login(api *client.Client, username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := api.Login(ctx, username, password)
		return loginMsg{result: res, err: err}
	}
}

// loadVersions asks the server which software versions it accepts. An empty
// list means any version is accepted.
func loadVersions(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		versions, err := api.Versions(ctx)
		return versionsMsg{versions: versions, err: err}
	}
}

func refresh(d *dashboard.Dashboard) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return refreshedMsg{err: d.Refresh(ctx)}
	}
}

func submit(f *dashboard.Form) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := f.Submit(ctx)
		return submitMsg{form: f, result: res, err: err}
	}
}

func act(verb string, fn func(context.Context, string) (dashboard.Result, error), id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := fn(ctx, id)
		return actionMsg{verb: verb, result: res, err: err}
	}
}

func (m model) selected() (entities.DeviceTest, bool) {
	view := m.dash.View()
	if m.cursor < 0 || m.cursor >= len(view) {
		return entities.DeviceTest{}, false
	}
	return view[m.cursor], true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.dash.Close()
			return m, tea.Quit
		}
		switch m.step {
		case stepEnteringUsername, stepEnteringPassword:
			return m.updateLogin(msg)
		case stepList:
			return m.updateList(msg)
		case stepSearching:
			return m.updateSearch(msg)
		case stepForm:
			return m.updateForm(msg)
		case stepConfirmDelete:
			return m.updateConfirmDelete(msg)
		}

	case loginMsg:
		if msg.err != nil {
			m.session.SignOut()
			m.message = errorStyle.Render("✗ " + msg.err.Error())
			m.step = stepEnteringPassword
			return m, nil
		}
		m.session.SignIn(auth.Identity{UserID: msg.result.UserID, Username: msg.result.Username}, msg.result.Token)
		m.message = successStyle.Render("✓ Logged in as " + msg.result.Username)
		m.step = stepList
		return m, tea.Batch(loadVersions(m.api), refresh(m.dash))

	case versionsMsg:
		if msg.err != nil {
			m.message = errorStyle.Render("✗ could not load versions, using defaults: " + msg.err.Error())
			return m, nil
		}
		m.dash.SetValidator(entities.NewValidator(msg.versions))

	case refreshedMsg:
		if msg.err != nil && !errors.Is(msg.err, dashboard.ErrClosed) {
			m.message = errorStyle.Render("✗ refresh failed: " + msg.err.Error())
		}
		m.clampCursor()

	case submitMsg:
		if msg.form != m.form {
			// result of a form the operator already closed
			return m, nil
		}
		var verr *entities.ValidationError
		switch {
		case errors.As(msg.err, &verr):
			m.fieldErrors = verr.Fields
			m.message = errorStyle.Render("✗ please fix the highlighted fields")
		case errors.Is(msg.err, repositories.ErrStoreUnavailable):
			m.message = errorStyle.Render("✗ server unavailable, your changes are kept; press ctrl+s to retry")
		case msg.err != nil:
			m.message = errorStyle.Render("✗ " + msg.err.Error())
		case msg.result.Outcome == dashboard.OutcomeStale:
			m.closeForm()
			m.message = dimStyle.Render("that record no longer exists; list refreshed")
		default:
			m.closeForm()
			m.message = successStyle.Render("✓ saved " + msg.result.Record.SerialNumber)
		}
		m.clampCursor()

	case actionMsg:
		switch {
		case errors.Is(msg.err, usecases.ErrInvalidTransition):
			m.message = errorStyle.Render("✗ cannot " + msg.verb + " a test in this state")
		case msg.err != nil:
			m.message = errorStyle.Render("✗ " + msg.verb + " failed: " + msg.err.Error())
		case msg.result.Outcome == dashboard.OutcomeStale:
			m.message = dimStyle.Render("that record no longer exists; list refreshed")
		default:
			m.message = successStyle.Render("✓ " + msg.verb + " done")
		}
		m.clampCursor()
	}

	return m, nil
}

func (m model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyBackspace:
		m.input = dropLastRune(m.input)
	case tea.KeyEnter:
		if m.input == "" {
			return m, nil
		}
		if m.step == stepEnteringUsername {
			m.username = m.input
			m.input = ""
			m.step = stepEnteringPassword
			return m, nil
		}
		m.password = m.input
		m.input = ""
		m.step = stepLoggingIn
		m.message = "Logging in..."
		return m, login(m.api, m.username, m.password)
	case tea.KeyRunes, tea.KeySpace:
		m.input += msg.String()
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		m.dash.Close()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.dash.View())-1 {
			m.cursor++
		}
	case "/":
		m.input = m.dash.Criteria().SearchTerm
		m.step = stepSearching
	case "s":
		c := m.dash.Criteria()
		c.Status = nextOption(c.Status, statusOptions())
		m.dash.SetCriteria(c)
		m.clampCursor()
	case "v":
		c := m.dash.Criteria()
		c.Version = nextOption(c.Version, versionOptions(m.dash))
		m.dash.SetCriteria(c)
		m.clampCursor()
	case "L":
		m.session.SignOut()
		m.api.SetToken(m.session.Token())
		m.username, m.password, m.input = "", "", ""
		m.message = dimStyle.Render("signed out")
		m.step = stepEnteringUsername
		return m, nil
	case "ctrl+r", "R":
		m.message = dimStyle.Render("refreshing...")
		return m, refresh(m.dash)
	case "a":
		f, err := m.dash.OpenAdd()
		if err != nil {
			m.message = errorStyle.Render("✗ " + err.Error())
			return m, nil
		}
		m.openForm(f)
	case "e", "enter":
		if rec, ok := m.selected(); ok {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			f, err := m.dash.OpenEdit(ctx, rec.ID)
			cancel()
			if errors.Is(err, repositories.ErrNotFound) {
				m.message = dimStyle.Render("that record no longer exists; list refreshed")
				m.clampCursor()
				return m, nil
			}
			if err != nil {
				m.message = errorStyle.Render("✗ " + err.Error())
				return m, nil
			}
			m.openForm(f)
		}
	case "r":
		if rec, ok := m.selected(); ok {
			return m, act("start", m.dash.Start, rec.ID)
		}
	case "c":
		if rec, ok := m.selected(); ok {
			return m, act("complete", m.dash.MarkCompleted, rec.ID)
		}
	case "f":
		if rec, ok := m.selected(); ok {
			return m, act("fail", m.dash.MarkFailed, rec.ID)
		}
	case "d":
		if _, ok := m.selected(); ok {
			m.step = stepConfirmDelete
		}
	}
	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.step = stepList
		return m, nil
	case tea.KeyBackspace:
		m.input = dropLastRune(m.input)
	case tea.KeyRunes, tea.KeySpace:
		m.input += msg.String()
	}
	c := m.dash.Criteria()
	c.SearchTerm = m.input
	m.dash.SetCriteria(c)
	m.cursor = 0
	return m, nil
}

func (m model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.step = stepList
	if msg.String() != "y" {
		return m, nil
	}
	if rec, ok := m.selected(); ok {
		return m, act("delete", m.dash.Delete, rec.ID)
	}
	return m, nil
}

func (m *model) openForm(f *dashboard.Form) {
	m.form = f
	m.fieldCursor = 0
	m.fieldErrors = nil
	m.fieldValues = inputToFields(f.Draft())
	m.step = stepForm
	m.message = ""
}

func (m *model) closeForm() {
	if m.form != nil {
		m.form.Close()
	}
	m.form = nil
	m.fieldValues = nil
	m.fieldErrors = nil
	m.step = stepList
}

func (m model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := formFields[m.fieldCursor].key
	switch msg.String() {
	case "esc":
		m.closeForm()
		m.message = dimStyle.Render("changes discarded")
		return m, nil
	case "up", "shift+tab":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "tab", "enter":
		if m.fieldCursor < len(formFields)-1 {
			m.fieldCursor++
		}
	case "ctrl+s":
		if m.form.Submitting() {
			return m, nil
		}
		in, perr := fieldsToInput(m.fieldValues)
		if len(perr) > 0 {
			m.fieldErrors = perr
			m.message = errorStyle.Render("✗ please fix the highlighted fields")
			return m, nil
		}
		m.form.SetDraft(in)
		m.fieldErrors = nil
		m.message = dimStyle.Render("saving...")
		return m, submit(m.form)
	case "backspace":
		m.fieldValues[key] = dropLastRune(m.fieldValues[key])
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.fieldValues[key] += msg.String()
		}
	}
	return m, nil
}

func dropLastRune(s string) string {
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

func (m *model) clampCursor() {
	n := len(m.dash.View())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func statusOptions() []string {
	opts := []string{usecases.FilterAll}
	for _, s := range entities.Statuses {
		opts = append(opts, string(s))
	}
	return opts
}

func versionOptions(d *dashboard.Dashboard) []string {
	seen := map[string]struct{}{}
	for _, v := range d.Versions() {
		seen[v] = struct{}{}
	}
	for _, r := range d.Records() {
		if r.SoftwareVersion != "" {
			seen[r.SoftwareVersion] = struct{}{}
		}
	}
	opts := make([]string, 0, len(seen))
	for v := range seen {
		opts = append(opts, v)
	}
	sort.Strings(opts)
	return append([]string{usecases.FilterAll}, opts...)
}

func nextOption(cur string, opts []string) string {
	for i, o := range opts {
		if o == cur {
			return opts[(i+1)%len(opts)]
		}
	}
	return opts[0]
}

func inputToFields(in entities.DeviceTestInput) map[string]string {
	return map[string]string{
		"serial_number":    in.SerialNumber,
		"imei":             in.IMEI,
		"software_version": in.SoftwareVersion,
		"status":           string(in.Status),
		"before_battery":   strconv.Itoa(in.BeforeBattery),
		"after_battery":    strconv.Itoa(in.AfterBattery),
		"total_hours":      strconv.FormatFloat(in.TotalHours, 'f', -1, 64),
		"start_time":       formatTime(in.StartTime),
		"end_time":         formatTime(in.EndTime),
		"remarks":          in.Remarks,
		"notes":            in.Notes,
	}
}

// fieldsToInput parses the text fields. Parse failures are reported per
// field the same way validation errors are.
func fieldsToInput(f map[string]string) (entities.DeviceTestInput, map[string]string) {
	errs := map[string]string{}
	in := entities.DeviceTestInput{
		SerialNumber:    f["serial_number"],
		IMEI:            f["imei"],
		SoftwareVersion: f["software_version"],
		Status:          entities.Status(f["status"]),
		Remarks:         f["remarks"],
		Notes:           f["notes"],
	}
	parseInt := func(key string) int {
		s := strings.TrimSpace(f[key])
		if s == "" {
			return 0
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			errs[key] = "must be a whole number"
		}
		return v
	}
	in.BeforeBattery = parseInt("before_battery")
	in.AfterBattery = parseInt("after_battery")
	if s := strings.TrimSpace(f["total_hours"]); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs["total_hours"] = "must be a number"
		}
		in.TotalHours = v
	}
	parseTime := func(key string) *time.Time {
		s := strings.TrimSpace(f[key])
		if s == "" {
			return nil
		}
		t, err := time.ParseInLocation(timeLayout, s, time.Local)
		if err != nil {
			errs[key] = "use YYYY-MM-DD HH:MM"
			return nil
		}
		t = t.UTC()
		return &t
	}
	in.StartTime = parseTime("start_time")
	in.EndTime = parseTime("end_time")
	return in, errs
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("Device Stress Tests"))
	s.WriteString("\n")

	switch m.step {
	case stepEnteringUsername:
		s.WriteString(promptStyle.Render("Enter your username:\n"))
		s.WriteString(inputStyle.Render("> " + m.input))
		s.WriteString("\n\nPress Enter\n")

	case stepEnteringPassword:
		if m.message != "" {
			s.WriteString(m.message + "\n\n")
		}
		s.WriteString(promptStyle.Render(fmt.Sprintf("Password for %s:\n", m.username)))
		s.WriteString(inputStyle.Render("> " + strings.Repeat("•", len(m.input))))
		s.WriteString("\n\nPress Enter\n")

	case stepLoggingIn:
		if m.session.Loading() {
			s.WriteString(dimStyle.Render("signing in…") + "\n")
		} else {
			s.WriteString(m.message + "\n")
		}

	case stepList, stepSearching, stepConfirmDelete:
		m.viewList(&s)

	case stepForm:
		m.viewForm(&s)
	}

	return s.String()
}

func (m model) viewList(s *strings.Builder) {
	if m.session.State() != auth.StateAuthenticated {
		s.WriteString(dimStyle.Render("signed out") + "\n")
		return
	}
	if u := m.session.CurrentUser(); u != nil {
		s.WriteString(dimStyle.Render("signed in as "+u.Username) + "\n\n")
	}

	st := m.dash.Stats()
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statStyle.Render(fmt.Sprintf("Total\n%d", st.Total)),
		statStyle.Render(fmt.Sprintf("Running\n%d", st.Running)),
		statStyle.Render(fmt.Sprintf("Completed\n%d", st.Completed)),
		statStyle.Render(fmt.Sprintf("Failed\n%d", st.Failed)),
	))
	s.WriteString("\n")

	c := m.dash.Criteria()
	search := c.SearchTerm
	if m.step == stepSearching {
		search = inputStyle.Render(m.input + "_")
	}
	s.WriteString(fmt.Sprintf("search: %s  status: %s  version: %s\n\n", search, c.Status, c.Version))

	view := m.dash.View()
	if len(view) == 0 {
		s.WriteString(dimStyle.Render("no device tests match") + "\n")
	}
	for i, r := range view {
		cursor := " "
		line := fmt.Sprintf("%-14s %-16s %-8s %6.1fh  %3d%% → %3d%%  %s",
			r.SerialNumber, r.IMEI, r.SoftwareVersion, r.TotalHours, r.BeforeBattery, r.AfterBattery, r.Remarks)
		if i == m.cursor {
			cursor = ">"
			line = selectedStyle.Render(line)
		}
		busy := ""
		if m.dash.InFlight(r.ID) {
			busy = dimStyle.Render(" …")
		}
		s.WriteString(fmt.Sprintf("%s %s %s%s\n", cursor, badge(r.Status), line, busy))
	}

	s.WriteString("\n")
	if m.message != "" {
		s.WriteString(m.message + "\n")
	}
	if m.step == stepConfirmDelete {
		s.WriteString(promptStyle.Render("Delete the selected test? (y/N)") + "\n")
		return
	}
	s.WriteString(dimStyle.Render("↑/↓ move  / search  s status  v version  a add  e edit  r start  c complete  f fail  d delete  R refresh  L sign out  q quit") + "\n")
}

func (m model) viewForm(s *strings.Builder) {
	title := "Add device test"
	if m.form.Mode() == dashboard.ModeEdit {
		title = "Edit device test"
	}
	s.WriteString(promptStyle.Render(title) + "\n\n")
	for i, f := range formFields {
		cursor := " "
		label := fmt.Sprintf("%-20s", f.label)
		if i == m.fieldCursor {
			cursor = ">"
			label = selectedStyle.Render(label)
		}
		s.WriteString(fmt.Sprintf("%s %s %s", cursor, label, inputStyle.Render(m.fieldValues[f.key])))
		if msg, ok := m.fieldErrors[f.key]; ok {
			s.WriteString("  " + errorStyle.Render(msg))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")
	versions := "any"
	if v := m.dash.Versions(); len(v) > 0 {
		versions = strings.Join(v, ", ")
	}
	s.WriteString(dimStyle.Render("versions: "+versions) + "\n")
	s.WriteString(dimStyle.Render("statuses: pending, running, completed, failed; times as "+timeLayout) + "\n\n")
	if m.message != "" {
		s.WriteString(m.message + "\n")
	}
	s.WriteString(dimStyle.Render("↑/↓ field  ctrl+s save  esc cancel") + "\n")
}

func main() {
	serverURL := pflag.StringP("server", "s", "http://localhost:3536", "stress test server base URL")
	username := pflag.StringP("user", "u", "", "username to sign in with")
	pflag.Parse()

	p := tea.NewProgram(initialModel(*serverURL, *username))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
