package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	guidance "github.com/koscakluka/safewalk-core/core"
	"github.com/koscakluka/safewalk-core/core/events"
	"github.com/koscakluka/safewalk-core/core/geo"
	"github.com/koscakluka/safewalk-core/core/geolocation"
	"github.com/muesli/reflow/wordwrap"
)

const (
	maxLogLines         = 12
	defaultWrapWidth    = 72
	recommendationLimit = 5
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type eventMsg struct{ event events.Event }

type checkInMsg struct {
	check guidance.GeofenceCheck
	err   error
}

type beginMsg struct{ err error }

type recommendationsMsg struct {
	areas []guidance.AreaRecommendation
	err   error
}

type logLine struct {
	text  string
	style lipgloss.Style
}

type model struct {
	ctx     context.Context
	engine  *guidance.DialogEngine
	session *guidance.WalkingSession
	locator *geolocation.Replay
	areas   guidance.AreaLister
	updates <-chan events.Event

	spinner spinner.Model
	width   int
	busy    bool
	route   *guidance.Route
	areaHit []guidance.AreaRecommendation
	lines   []logLine
}

func newModel(ctx context.Context, engine *guidance.DialogEngine, session *guidance.WalkingSession, locator *geolocation.Replay, areas guidance.AreaLister, updates <-chan events.Event) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{
		ctx:     ctx,
		engine:  engine,
		session: session,
		locator: locator,
		areas:   areas,
		updates: updates,
		spinner: s,
		width:   defaultWrapWidth,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.updates))
}

func waitForEvent(updates <-chan events.Event) tea.Cmd {
	return func() tea.Msg { return eventMsg{event: <-updates} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(20, msg.Width-2)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.handleEvent(msg.event)
		return m, waitForEvent(m.updates)

	case checkInMsg:
		m.busy = false
		if msg.err != nil {
			m = m.log(errorStyle, "체크인 실패: "+describeError(msg.err))
		} else {
			m = m.log(successStyle, fmt.Sprintf("%s 체크인 완료 (%.0fm)", checkpointLabel(msg.check.Checkpoint), msg.check.DistanceMeters))
		}
		return m, nil

	case beginMsg:
		m.busy = false
		if msg.err != nil {
			m = m.log(errorStyle, "산책을 시작하지 못했습니다: "+describeError(msg.err))
		}
		return m, nil

	case recommendationsMsg:
		m.busy = false
		if msg.err != nil {
			m = m.log(errorStyle, "추천 산책로를 불러오지 못했습니다: "+describeError(msg.err))
			return m, nil
		}
		m.areaHit = msg.areas
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.engine.Stop()
		m.session.Cancel()
		return m, tea.Quit

	case "d":
		if err := m.engine.Start(m.ctx); err != nil {
			m = m.log(errorStyle, "음성 안내를 시작할 수 없습니다: "+describeError(err))
		}
	case "s":
		m.engine.Stop()
	case "y":
		m = m.submit("네")
	case "n":
		m = m.submit("아니요")

	case "w":
		if m.route == nil {
			m = m.log(errorStyle, "먼저 목적지를 정해주세요.")
			return m, nil
		}
		m.busy = true
		route := *m.route
		return m, func() tea.Msg { return beginMsg{err: m.session.Begin(m.ctx, route)} }
	case "1":
		m.busy = true
		return m, m.checkIn(guidance.CheckpointStart)
	case "2":
		m.busy = true
		return m, m.checkIn(guidance.CheckpointEnd)
	case "c":
		m.session.Cancel()

	case "[":
		m = m.moveTo(func(r guidance.Route) geo.Coordinate { return r.Start }, "출발지")
	case "]":
		m = m.moveTo(func(r guidance.Route) geo.Coordinate { return r.End }, "도착지")

	case "r":
		m.busy = true
		return m, func() tea.Msg {
			areas, err := guidance.RecommendNearbyAreas(m.ctx, m.locator, m.areas, recommendationLimit)
			return recommendationsMsg{areas: areas, err: err}
		}
	}
	return m, nil
}

func (m model) checkIn(checkpoint guidance.Checkpoint) tea.Cmd {
	return func() tea.Msg {
		check, err := m.session.CheckIn(m.ctx, checkpoint)
		return checkInMsg{check: check, err: err}
	}
}

func (m model) submit(reply string) model {
	if err := m.engine.SubmitReply(reply); err != nil {
		return m.log(errorStyle, "지금은 답할 수 없습니다.")
	}
	return m
}

// moveTo relocates the simulated position, standing in for walking there.
func (m model) moveTo(pick func(guidance.Route) geo.Coordinate, label string) model {
	if m.route == nil {
		return m.log(errorStyle, "경로가 없습니다.")
	}
	m.locator.Push(geolocation.Step{Fix: geo.Fix{Coordinate: pick(*m.route), AccuracyMeters: 5}})
	return m.log(statusStyle, label+"(으)로 이동했습니다.")
}

func (m model) handleEvent(event events.Event) model {
	switch e := event.(type) {
	case events.StatusUpdated:
		if e.IsError() {
			return m.log(errorStyle, e.Message)
		}
		return m.log(statusStyle, e.Message)
	case events.UserTranscriptFinal:
		return m.log(labelStyle, "> "+e.Transcript)
	case events.RouteFound:
		if result, ok := m.engine.Result(); ok {
			route := guidance.RouteFromDialog(result)
			m.route = &route
		}
		return m.log(successStyle, fmt.Sprintf("%s까지 %.1fkm, 약 %d분", e.Destination, e.DistanceKm, e.EstimatedMinutes))
	case events.SessionCompleted:
		return m.log(successStyle, "산책을 완료했습니다.")
	case events.PointsClaimAccepted:
		return m.log(successStyle, fmt.Sprintf("%d 포인트 적립: %s", e.PointsEarned, e.Message))
	case events.PointsClaimRejected:
		if errors.Is(e.Err, guidance.ErrDuplicateClaim) {
			return m.log(labelStyle, "오늘 이미 적립된 경로입니다.")
		}
		return m.log(errorStyle, "포인트 적립 실패: "+describeError(e.Err))
	}
	return m
}

func (m model) log(style lipgloss.Style, text string) model {
	m.lines = append(m.lines, logLine{text: text, style: style})
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	return m
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SafeWalk"))
	b.WriteString("\n\n")

	dialogState := m.engine.State().String()
	if m.engine.IsListening() {
		dialogState += " " + m.spinner.View()
	}
	if m.engine.Disabled() {
		dialogState += " (음성 비활성화)"
	}
	b.WriteString(labelStyle.Render("안내: ") + dialogState + "\n")
	if pending := m.engine.PendingDestination(); pending != "" {
		b.WriteString(labelStyle.Render("확인 중: ") + pending + "\n")
	}

	snapshot := m.session.Snapshot()
	b.WriteString(labelStyle.Render("산책: ") + snapshot.State.String())
	if m.busy {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")
	if m.route != nil {
		b.WriteString(labelStyle.Render("경로: ") + m.route.Name + "\n")
	}

	if len(m.areaHit) > 0 {
		b.WriteString("\n" + labelStyle.Render("추천 산책로") + "\n")
		for _, hit := range m.areaHit {
			fmt.Fprintf(&b, "  %s  %.1fkm  %s\n", hit.Area.Name, hit.DistanceKm, hit.Area.Difficulty)
		}
	}

	b.WriteString("\n")
	for _, line := range m.lines {
		b.WriteString(line.style.Render(wordwrap.String(line.text, m.width)))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(wordwrap.String(
		"d 안내 시작 · s 중지 · y/n 답하기 · w 산책 시작 · [ ] 출발지/도착지로 이동 · 1/2 체크인 · c 취소 · r 추천 · q 종료",
		m.width)))
	return b.String()
}

func checkpointLabel(checkpoint guidance.Checkpoint) string {
	if checkpoint == guidance.CheckpointEnd {
		return "도착지"
	}
	return "출발지"
}

func describeError(err error) string {
	var violation *guidance.GeofenceViolationError
	switch {
	case errors.As(err, &violation):
		return fmt.Sprintf("%s에서 %.0fm 떨어져 있습니다 (%.0fm 이내)", checkpointLabel(violation.Checkpoint), violation.DistanceMeters, violation.RadiusMeters)
	case errors.Is(err, guidance.ErrSessionOrderViolation):
		return "출발지 체크인을 먼저 해주세요."
	case errors.Is(err, guidance.ErrPermissionDenied):
		return "권한이 필요합니다."
	case errors.Is(err, guidance.ErrNetworkFailure):
		return "네트워크 오류"
	}
	return err.Error()
}
