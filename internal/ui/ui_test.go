package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/orchestrator"
	"github.com/desertthunder/upsync/internal/services"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/status"
	"github.com/desertthunder/upsync/internal/tasks"
	tu "github.com/desertthunder/upsync/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeRemote struct {
	loggedIn bool
	tasks    []models.TaskInstance
	detail   *models.TaskDetail
}

func (f *fakeRemote) IssueChallenge(ctx context.Context) (*models.AuthChallenge, error) {
	return &models.AuthChallenge{ChallengeID: "code", PresentationPayload: "https://example.com/qr", IssuedAt: epoch}, nil
}

func (f *fakeRemote) PollChallenge(ctx context.Context, id string) (services.PollResult, error) {
	return services.PollResult{Status: services.PollPending}, nil
}

func (f *fakeRemote) AuthStatus(ctx context.Context) (*services.AuthStatus, error) {
	if !f.loggedIn {
		return &services.AuthStatus{}, nil
	}
	return &services.AuthStatus{LoggedIn: true, Identity: &models.Identity{SubjectID: "42", DisplayName: "Alice"}}, nil
}

func (f *fakeRemote) Logout(ctx context.Context) error { return nil }

func (f *fakeRemote) ListAllTasks(ctx context.Context) ([]models.TaskInstance, error) {
	return f.tasks, nil
}

func (f *fakeRemote) GetTask(ctx context.Context, id string) (*models.TaskDetail, error) {
	if f.detail == nil {
		return nil, shared.ErrTaskNotFound
	}
	return f.detail, nil
}

func (f *fakeRemote) ListFiles(ctx context.Context, id string) (*models.TaskFiles, error) {
	return &models.TaskFiles{}, nil
}

func (f *fakeRemote) RetryStep(ctx context.Context, id, step string) error { return nil }

func (f *fakeRemote) TriggerStage(ctx context.Context, id string, trigger status.Trigger) error {
	return nil
}

func newTestModel(t *testing.T, remote *fakeRemote) *Model {
	t.Helper()
	clock := tu.NewFakeClock(epoch)
	session := auth.New(auth.Options{Remote: remote, Clock: clock})
	registry := tasks.NewRegistry(tasks.Options{Remote: remote, Clock: clock})
	orch := orchestrator.New(orchestrator.Options{Remote: remote, Session: session, Registry: registry})
	t.Cleanup(orch.Close)

	m := NewModel(context.Background(), Options{Orchestrator: orch, PageSize: 2})
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func press(m *Model, k string) {
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	m.Update(msg)
}

func TestQR(t *testing.T) {
	t.Run("half blocks", func(t *testing.T) {
		tt := []struct {
			name   string
			bitmap [][]bool
			want   string
		}{
			{name: "both dark", bitmap: [][]bool{{true}, {true}}, want: " "},
			{name: "both light", bitmap: [][]bool{{false}, {false}}, want: "█"},
			{name: "top dark", bitmap: [][]bool{{true}, {false}}, want: "▄"},
			{name: "bottom dark", bitmap: [][]bool{{false}, {true}}, want: "▀"},
			{name: "odd row count", bitmap: [][]bool{{true, false}}, want: "▄█"},
			{name: "two lines", bitmap: [][]bool{{true}, {true}, {false}}, want: " \n█"},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				assert.Equal(t, tc.want, halfBlocks(tc.bitmap))
			})
		}
	})

	t.Run("renders content", func(t *testing.T) {
		qr, err := RenderQR("https://example.com/login?auth_code=abc")
		require.NoError(t, err)

		lines := strings.Split(qr, "\n")
		assert.Greater(t, len(lines), 10)
		for _, line := range lines {
			assert.Equal(t, len([]rune(lines[0])), len([]rune(line)))
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := RenderQR("")
		assert.Error(t, err)
	})
}

func TestItems(t *testing.T) {
	t.Run("task", func(t *testing.T) {
		item := taskItem{task: models.TaskInstance{TaskID: "7", Title: "Talk", StatusCode: "201"}}
		assert.Equal(t, "Talk", item.Title())
		assert.Contains(t, item.Description(), "#7")
		assert.Contains(t, item.Description(), "Uploading video")

		untitled := taskItem{task: models.TaskInstance{TaskID: "8"}}
		assert.Equal(t, "#8", untitled.Title())
	})

	t.Run("step", func(t *testing.T) {
		item := stepItem{step: models.TaskStep{StepName: "download_video", Order: 1, Status: models.StepFailed, Retryable: true, ErrorMessage: "timeout"}}
		assert.True(t, strings.HasPrefix(item.Title(), "1. "))
		assert.True(t, strings.HasSuffix(item.Title(), "↻"))
		assert.Contains(t, item.Description(), "timeout")
	})
}

func TestModel(t *testing.T) {
	remote := &fakeRemote{
		loggedIn: true,
		tasks: []models.TaskInstance{
			{TaskID: "1", Title: "One", StatusCode: "001"},
			{TaskID: "2", Title: "Two", StatusCode: "002"},
			{TaskID: "3", Title: "Three", StatusCode: "400"},
		},
		detail: &models.TaskDetail{
			TaskInstance: models.TaskInstance{TaskID: "1", Title: "One", StatusCode: "200"},
			Steps:        []models.TaskStep{{StepName: "download_video", Order: 1, Status: models.StepCompleted}},
		},
	}

	t.Run("signed in start shows the list", func(t *testing.T) {
		m := newTestModel(t, remote)
		m.Update(startedMsg(m.orch.Start(context.Background())))

		assert.Equal(t, ListView, m.view)
		assert.Equal(t, 3, m.page.Total)
		assert.Equal(t, 2, m.page.Pages)
		assert.Contains(t, m.View(), "All (3)")
		assert.Contains(t, m.View(), "Alice")
	})

	t.Run("tabs and pages", func(t *testing.T) {
		m := newTestModel(t, remote)
		m.Update(startedMsg(m.orch.Start(context.Background())))

		press(m, "]")
		assert.Equal(t, 2, m.page.Page)
		press(m, "]")
		assert.Equal(t, 2, m.page.Page)

		press(m, "tab")
		assert.Equal(t, status.Pending, m.pager.Filter())
		assert.Equal(t, 1, m.page.Page)
		assert.Equal(t, 1, m.page.Total)

		press(m, "h")
		assert.Equal(t, status.All, m.pager.Filter())
		press(m, "h")
		assert.Equal(t, status.Failed, m.pager.Filter())
		assert.Contains(t, m.View(), "No failed tasks")
	})

	t.Run("detail", func(t *testing.T) {
		m := newTestModel(t, remote)
		m.Update(startedMsg(m.orch.Start(context.Background())))

		m.Update(detailFetchedMsg(remote.detail, nil))
		assert.Equal(t, DetailView, m.view)
		assert.Contains(t, m.View(), "Manual upload available: video")

		press(m, "r")
		assert.True(t, m.failed)
		assert.Contains(t, m.message, "cannot be retried")

		press(m, "esc")
		assert.Equal(t, ListView, m.view)
		assert.Nil(t, m.detail)
	})

	t.Run("detail error stays on the list", func(t *testing.T) {
		m := newTestModel(t, remote)
		m.Update(startedMsg(m.orch.Start(context.Background())))

		m.Update(detailFetchedMsg(nil, shared.ErrTaskNotFound))
		assert.Equal(t, ListView, m.view)
		assert.True(t, m.failed)
	})

	t.Run("signed out start shows the login", func(t *testing.T) {
		m := newTestModel(t, &fakeRemote{})
		_, cmd := m.Update(startedMsg(nil))

		assert.Equal(t, LoginView, m.view)
		assert.NotNil(t, cmd)
		assert.True(t, m.loggingIn)

		challenge := &models.AuthChallenge{ChallengeID: "abc", PresentationPayload: "https://example.com/qr"}
		m.Update(authEventMsg(auth.Event{Kind: auth.EventChallengeIssued, Challenge: challenge}))
		assert.NotEmpty(t, m.qr)
		assert.Contains(t, m.View(), "Scan the code")

		m.Update(authEventMsg(auth.Event{Kind: auth.EventExpired, Err: shared.ErrChallengeExpired}))
		assert.Contains(t, m.View(), "expired")
	})

	t.Run("stale login results are ignored", func(t *testing.T) {
		m := newTestModel(t, &fakeRemote{})
		m.view = LoginView
		m.login()
		m.login()

		m.Update(loginDoneMsg(1, nil, shared.ErrHandshakeCanceled))
		assert.True(t, m.loggingIn)

		m.Update(loginDoneMsg(2, nil, shared.ErrChallengeExpired))
		assert.False(t, m.loggingIn)
		assert.ErrorIs(t, m.loginErr, shared.ErrChallengeExpired)
	})

	t.Run("registry updates", func(t *testing.T) {
		m := newTestModel(t, remote)
		m.Update(startedMsg(m.orch.Start(context.Background())))
		m.busy = true

		m.Update(registryUpdateMsg(tasks.Update{Phase: tasks.RefreshFailed, Message: "boom", Err: shared.ErrAPIRequest}))
		assert.False(t, m.busy)
		assert.True(t, m.failed)
		assert.Equal(t, "boom", m.message)
	})
}
