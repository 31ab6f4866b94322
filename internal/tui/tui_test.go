package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwoolley/playbook/internal/domain"
)

func mockSearchFn(files []domain.FileRecord, err error) SearchFunc {
	return func(context.Context, string) ([]domain.FileRecord, error) {
		return files, err
	}
}

func sampleFiles() []domain.FileRecord {
	return []domain.FileRecord{
		{ID: "a", Name: "Enquiry A.docx", MimeType: domain.MimeOpenXMLDoc},
		{ID: "b", Name: "Log.xlsx", MimeType: domain.MimeOpenXMLSheet},
		{ID: "c", Name: "Notes.txt", MimeType: domain.MimePlainText},
	}
}

func resultsModel(agg AggregateFunc) Model {
	m := NewModel(mockSearchFn(nil, nil), agg)
	m.state = stateResults
	m.query = "steel"
	m.files = sampleFiles()
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestModel_Init(t *testing.T) {
	m := NewModel(mockSearchFn(nil, nil), nil)
	assert.True(t, m.searchInput.Focused())
	assert.Equal(t, stateInput, m.state)

	cmd := m.Init()
	require.NotNil(t, cmd)
	assert.IsType(t, textinput.Blink(), cmd())
}

func TestModel_Search_DisplaysResults(t *testing.T) {
	files := sampleFiles()
	var gotQuery string
	m := NewModel(func(_ context.Context, q string) ([]domain.FileRecord, error) {
		gotQuery = q
		return files, nil
	}, nil)
	m.searchInput.SetValue("  steel, beams ")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, stateLoading, m.state)
	assert.NotNil(t, m.cancel)

	updated, _ := m.Update(cmd())
	m = updated.(Model)
	assert.Equal(t, "steel, beams", gotQuery)
	assert.Equal(t, stateResults, m.state)
	assert.Len(t, m.files, 3)
	assert.Nil(t, m.cancel)
	assert.Contains(t, m.View(), "3 results, 0 selected")
}

func TestModel_EmptyQueryIgnored(t *testing.T) {
	m := NewModel(mockSearchFn(nil, nil), nil)
	m.searchInput.SetValue("   ")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, stateInput, m.state)
}

func TestModel_Navigate(t *testing.T) {
	m := resultsModel(nil)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.cursor, "stays at the bottom")
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.cursor)
}

func TestModel_SelectAndAggregate(t *testing.T) {
	var got []domain.FileRecord
	m := resultsModel(func(_ context.Context, q string, files []domain.FileRecord) ([]string, error) {
		assert.Equal(t, "steel", q)
		got = files
		return []string{"out/steel.docx"}, nil
	})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	assert.Contains(t, m.View(), "[x]")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	require.NotNil(t, cmd)
	assert.Equal(t, stateAggregating, m.state)

	updated, _ := m.Update(cmd())
	m = updated.(Model)
	assert.Equal(t, stateDone, m.state)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Contains(t, m.View(), "out/steel.docx")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEscape})
	assert.Equal(t, stateResults, m.state)
}

func TestModel_AggregateNeedsSelection(t *testing.T) {
	m := resultsModel(func(context.Context, string, []domain.FileRecord) ([]string, error) {
		t.Fatal("must not aggregate without a selection")
		return nil, nil
	})
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	assert.Nil(t, cmd)
	assert.Equal(t, stateResults, m.state)
}

func TestModel_AggregateDisabledWithoutFunc(t *testing.T) {
	m := resultsModel(nil)
	m.selected[0] = true
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	assert.Nil(t, cmd)
	assert.NotContains(t, m.View(), "a: aggregate")
}

func TestModel_AggregateError(t *testing.T) {
	m := resultsModel(nil)
	m.state = stateAggregating
	updated, _ := m.Update(aggregateResultMsg{err: errors.New("failed to process any Excel files")})
	m = updated.(Model)

	assert.Equal(t, stateResults, m.state)
	assert.Contains(t, m.View(), "failed to process any Excel files")
}

func TestModel_Escape_ReturnsToInput(t *testing.T) {
	m := resultsModel(nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEscape})

	assert.Equal(t, stateInput, m.state)
	assert.True(t, m.searchInput.Focused())
}

func TestModel_EscapeDuringLoading_CancelsContext(t *testing.T) {
	started := make(chan context.Context, 1)
	m := NewModel(func(ctx context.Context, _ string) ([]domain.FileRecord, error) {
		started <- ctx
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)
	m.searchInput.SetValue("steel")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	done := make(chan struct{})
	go func() {
		defer close(done)
		cmd()
	}()
	ctx := <-started

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEscape})
	assert.Equal(t, stateInput, m.state)
	<-done
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestModel_SearchResult_ClearsStaleError(t *testing.T) {
	m := NewModel(mockSearchFn(nil, nil), nil)
	m.err = errors.New("previous network error")
	m.cancel = func() {}
	m.state = stateLoading

	updated, _ := m.Update(searchResultMsg{files: sampleFiles()})
	m = updated.(Model)

	assert.Nil(t, m.err)
	assert.Nil(t, m.cancel)
	assert.Equal(t, stateResults, m.state)
}

func TestModel_SearchError_ReturnsToInput(t *testing.T) {
	m := NewModel(mockSearchFn(nil, nil), nil)
	m.state = stateLoading
	m.cancel = func() {}

	updated, _ := m.Update(searchResultMsg{err: errors.New("Access token expired")})
	m = updated.(Model)

	assert.Equal(t, stateInput, m.state)
	assert.Nil(t, m.cancel)
	assert.Contains(t, m.View(), "Access token expired")
}

func TestModel_View_NoResults(t *testing.T) {
	m := NewModel(mockSearchFn(nil, nil), nil)
	m.state = stateResults
	assert.Contains(t, m.View(), "No results found.")
}

func TestDescribe(t *testing.T) {
	size := int64(2048)
	f := domain.FileRecord{Name: "a.pdf", MimeType: domain.MimePDF, Size: &size}
	assert.Contains(t, describe(f), "2 KB")
}
