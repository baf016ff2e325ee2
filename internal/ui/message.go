package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/upsync/internal/auth"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStarted MsgKind = iota
	MsgAuthEvent
	MsgRegistryUpdate
	MsgLoginDone
	MsgLogoutDone
	MsgDetailFetched
	MsgCommandDone
)

type result[T any] struct {
	value T
	err   error
}

// startedMsg is the constructor for [MsgStarted]
func startedMsg(err error) Msg {
	return Msg{kind: MsgStarted, data: err}
}

// authEventMsg is the constructor for [MsgAuthEvent]
func authEventMsg(e auth.Event) Msg {
	return Msg{kind: MsgAuthEvent, data: e}
}

// registryUpdateMsg is the constructor for [MsgRegistryUpdate]
func registryUpdateMsg(u tasks.Update) Msg {
	return Msg{kind: MsgRegistryUpdate, data: u}
}

type loginResult struct {
	gen      int
	identity *models.Identity
	err      error
}

// loginDoneMsg is the constructor for [MsgLoginDone]. gen identifies the login attempt so results of
// replaced attempts can be ignored.
func loginDoneMsg(gen int, identity *models.Identity, err error) Msg {
	return Msg{kind: MsgLoginDone, data: loginResult{gen, identity, err}}
}

// logoutDoneMsg is the constructor for [MsgLogoutDone]
func logoutDoneMsg(err error) Msg {
	return Msg{kind: MsgLogoutDone, data: err}
}

// detailFetchedMsg is the constructor for [MsgDetailFetched]
func detailFetchedMsg(detail *models.TaskDetail, err error) Msg {
	return Msg{kind: MsgDetailFetched, data: result[*models.TaskDetail]{detail, err}}
}

// commandDoneMsg is the constructor for [MsgCommandDone]. taskID names the task to re-fetch.
func commandDoneMsg(taskID string, err error) Msg {
	return Msg{kind: MsgCommandDone, data: result[string]{taskID, err}}
}

func asError(m Msg) error {
	err, _ := m.data.(error)
	return err
}
