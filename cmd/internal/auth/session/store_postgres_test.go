package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dwbrown115/GameServer/cmd/security/token"
)

// fakeRows serves record tuples in recordColumns order.
type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.i >= len(f.rows) {
		return false
	}
	f.i++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.i-1]
	if len(row) != len(dest) {
		return errors.New("fakeRows: column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *[]byte:
			*p = row[i].([]byte)
		case *time.Time:
			*p = row[i].(time.Time)
		case *bool:
			*p = row[i].(bool)
		case **time.Time:
			*p = nil
		default:
			return errors.New("fakeRows: unsupported dest")
		}
	}
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func recordRow(id, userID string, stored []byte) []any {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, userID, "device-1", "sealed", stored, now.Add(time.Hour), false, now, nil}
}

func TestPostgresStoreCollect_SkipsUnwrapFailure(t *testing.T) {
	kek, _ := token.NewKey()
	w, err := token.NewKeyWrapper(kek)
	if err != nil {
		t.Fatalf("NewKeyWrapper: %v", err)
	}

	goodKey, _ := token.NewKey()
	wrapped, err := w.Wrap(goodKey)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	plainKey, _ := token.NewKey()

	var logs bytes.Buffer
	s := &PostgresStore{wrap: w, log: slog.New(slog.NewJSONHandler(&logs, nil))}

	got, err := s.collect(&fakeRows{rows: [][]any{
		recordRow("rec-legacy", "user-a", plainKey),
		recordRow("rec-good", "user-b", wrapped),
	}})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rec-good" || !bytes.Equal(got[0].Key, goodKey) {
		t.Fatalf("expected only rec-good with its key, got %+v", got)
	}
	if !strings.Contains(logs.String(), "session.store.unwrap.fail") || !strings.Contains(logs.String(), "rec-legacy") {
		t.Fatalf("expected unwrap failure to be logged, got %q", logs.String())
	}
}

func TestPostgresStoreCollect_PropagatesRowErrors(t *testing.T) {
	s := &PostgresStore{log: slog.New(slog.NewJSONHandler(io.Discard, nil))}
	boom := errors.New("conn reset")

	if _, err := s.collect(&fakeRows{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected rows error, got %v", err)
	}
	if _, err := s.collect(&fakeRows{rows: [][]any{{"only-one-column"}}}); err == nil {
		t.Fatalf("expected scan error")
	}
}
