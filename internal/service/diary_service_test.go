package service

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moodfox/internal/db"
	"github.com/stretchr/testify/require"
)

type diaryFixture struct {
	postcards postcardFixture
	adventure *AdventureService
	service   *DiaryService
}

func newDiaryFixture(t *testing.T) diaryFixture {
	t.Helper()
	pf := newPostcardFixture(t, textReturning(postcardResponse), noRetry(true), http.StatusOK)
	catalog := DefaultMonsterCatalog()
	adventure := NewAdventureService(pf.gdb, NewLedgerService(pf.gdb), NewChallengeAuthor(nil, catalog, noRetry(true)), catalog, pf.scheduler)
	adventure.SetPostcardRequester(pf.service)
	return diaryFixture{
		postcards: pf,
		adventure: adventure,
		service:   NewDiaryService(pf.gdb, adventure, pf.service, pf.store),
	}
}

func TestDiaryCreateLaunchesBackgroundWork(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()
	userID := f.postcards.userID

	diary, err := f.service.Create(ctx, DiaryInput{
		UserID:    userID,
		Content:   "  今天有点焦虑  ",
		Tags:      []string{"焦虑", "焦虑", " "},
		Intensity: 42,
	})
	require.NoError(t, err)
	require.Equal(t, "今天有点焦虑", diary.Content)
	require.Equal(t, []string{"焦虑"}, []string(diary.EmotionTags))
	require.Equal(t, 10, diary.Intensity)
	require.Equal(t, db.AnalysisStatusPending, diary.AnalysisStatus)

	var state db.GameState
	require.NoError(t, f.postcards.gdb.Where("user_id = ?", userID).First(&state).Error)
	require.Zero(t, state.TotalDiaryCount)

	require.Equal(t, 1, f.postcards.scheduler.pending("challenge"))
	require.Equal(t, 1, f.postcards.scheduler.pending("postcard"))

	f.postcards.scheduler.runAll(t)

	session, _, err := f.adventure.GetOrCreateSession(ctx, userID, diary.ID)
	require.NoError(t, err)
	require.Equal(t, db.AdventureStatusPending, session.Status)

	card, err := f.postcards.service.GetByDiary(ctx, userID, diary.ID)
	require.NoError(t, err)
	require.Equal(t, db.PostcardStatusCompleted, card.Status)
}

func TestDiaryCreateSucceedsWhenSchedulingFails(t *testing.T) {
	f := newDiaryFixture(t)
	f.postcards.scheduler.err = errors.New("queue full")

	diary, err := f.service.Create(context.Background(), DiaryInput{UserID: f.postcards.userID, Content: "写点什么"})
	require.NoError(t, err)
	require.Equal(t, 5, diary.Intensity)
}

func TestDiaryCreateValidates(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, DiaryInput{UserID: f.postcards.userID, Content: "   "})
	require.True(t, errors.Is(err, ErrInvalidDiary))

	_, err = f.service.Create(ctx, DiaryInput{Content: "hello"})
	require.True(t, errors.Is(err, ErrInvalidDiary))

	_, err = f.service.Create(ctx, DiaryInput{UserID: f.postcards.userID, Content: strings.Repeat("长", maxDiaryRunes+1)})
	require.True(t, errors.Is(err, ErrInvalidDiary))
}

func TestDiaryUpdateKeepsScoreApplied(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()
	userID := f.postcards.userID

	diary, err := f.service.Create(ctx, DiaryInput{UserID: userID, Content: "第一版", Tags: []string{"难过"}, Intensity: 3})
	require.NoError(t, err)

	analysis := NewAnalysisService(f.postcards.gdb, NewLedgerService(f.postcards.gdb), nil, noRetry(true))
	_, err = analysis.Analyze(ctx, userID, diary.ID)
	require.NoError(t, err)

	updated, err := f.service.Update(ctx, diary.ID, DiaryInput{UserID: userID, Content: "第二版", Tags: []string{"开心"}, Intensity: 8})
	require.NoError(t, err)
	require.Equal(t, "第二版", updated.Content)
	require.Equal(t, db.AnalysisStatusPending, updated.AnalysisStatus)
	require.True(t, updated.ScoreApplied)

	again, err := analysis.Analyze(ctx, userID, diary.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyApplied)

	_, err = f.service.Update(ctx, diary.ID, DiaryInput{UserID: userID + 1, Content: "越权"})
	require.True(t, errors.Is(err, ErrDiaryNotFound))
}

func TestDiaryDeleteCascades(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()
	userID := f.postcards.userID
	gdb := f.postcards.gdb

	diary, err := f.service.Create(ctx, DiaryInput{UserID: userID, Content: "要删除的日记", Tags: []string{"焦虑"}})
	require.NoError(t, err)
	f.postcards.scheduler.runAll(t)

	analysis := NewAnalysisService(gdb, NewLedgerService(gdb), nil, noRetry(true))
	_, err = analysis.Analyze(ctx, userID, diary.ID)
	require.NoError(t, err)

	card, err := f.postcards.service.GetByDiary(ctx, userID, diary.ID)
	require.NoError(t, err)
	imageFile := filepath.Join(f.postcards.store.dir, filepath.FromSlash(strings.TrimPrefix(card.ImageURL, "/image/postcards/")))
	_, err = os.Stat(imageFile)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, userID, diary.ID))

	for _, model := range []any{&db.Diary{}, &db.DiaryAnalysis{}, &db.AdventureSession{}, &db.Postcard{}} {
		var count int64
		require.NoError(t, gdb.Model(model).Count(&count).Error)
		require.Zero(t, count, "%T", model)
	}
	_, err = os.Stat(imageFile)
	require.True(t, os.IsNotExist(err))

	err = f.service.Delete(ctx, userID, diary.ID)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDiaryList(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()
	userID := f.postcards.userID

	for i := 0; i < 3; i++ {
		_, err := f.service.Create(ctx, DiaryInput{UserID: userID, Content: "日记"})
		require.NoError(t, err)
	}

	page, err := f.service.List(ctx, userID, DiaryListOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)

	all, err := f.service.List(ctx, userID, DiaryListOptions{PerPage: 1000})
	require.NoError(t, err)
	require.Equal(t, maxDiaryPageSize, all.PerPage)
	require.Len(t, all.Items, 3)
}
