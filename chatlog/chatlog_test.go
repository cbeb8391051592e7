package chatlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minios-linux/dialogkit/dialogue"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "dialogue.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func result(id string, ts time.Time, text, translated string) dialogue.Result {
	return dialogue.Result{
		Entry: dialogue.Entry{
			ID:          id,
			Timestamp:   ts.UnixMilli(),
			Code:        dialogue.CodeOCR,
			Name:        "エリオット",
			Text:        text,
			Translation: dialogue.Directive{From: "ja", To: "zh-TW"},
		},
		TranslatedName: "艾利歐特",
		TranslatedText: translated,
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	s, path := openStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	version, err := GetUserVersion(s.db)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
}

func TestOpenTwiceKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialogue.db")
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), result("a", day, "はい", "是")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	records, err := s.ListDay(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSaveAndListDay(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)

	require.NoError(t, s.Save(ctx, result("b", day.Add(10*time.Hour), "二", "二")))
	require.NoError(t, s.Save(ctx, result("a", day.Add(9*time.Hour), "一", "一")))
	require.NoError(t, s.Save(ctx, result("c", day.Add(-time.Minute), "前日", "前日")))
	require.NoError(t, s.Save(ctx, result("d", day.Add(24*time.Hour), "翌日", "翌日")))

	records, err := s.ListDay(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "b", records[1].ID)

	r := records[0]
	require.Equal(t, dialogue.CodeOCR, r.Code)
	require.Equal(t, "エリオット", r.Name)
	require.Equal(t, "艾利歐特", r.TranslatedName)
	require.Equal(t, "ja", r.From)
	require.Equal(t, "zh-TW", r.To)
	require.True(t, r.Time().Equal(day.Add(9*time.Hour)))
}

func TestSaveReplacesByID(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)

	require.NoError(t, s.Save(ctx, result("same", day, "はい", "是")))
	require.NoError(t, s.Save(ctx, result("same", day, "はい", "好的")))

	records, err := s.ListDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "好的", records[0].TranslatedText)
}

func TestSaveRequiresID(t *testing.T) {
	s, _ := openStore(t)
	err := s.Save(context.Background(), result("", time.Now(), "はい", "是"))
	require.Error(t, err)
}
