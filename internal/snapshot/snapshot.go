// Package snapshot reads and writes the screenings snapshot: the single JSON
// file an aggregation run produces and the query API serves.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/components/assert"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/timezone"
)

const (
	report_store_read  = "store.read"
	report_store_write = "store.write"
)

// VenueStat is the outcome of one venue in a run.
type VenueStat struct {
	Name       string `json:"name"`
	CinemaID   string `json:"cinema_id"`
	Screenings int    `json:"screenings"`
	// Error is empty when the venue was scraped successfully.
	Error string `json:"error,omitempty"`
}

type File struct {
	// Screenings are sorted ascending by start time.
	Screenings      []cinema.Screening
	GeneratedAt     *time.Time
	TotalScreenings int
	// Cinemas is the number of venues the run attempted.
	Cinemas int
	Stats   []VenueStat
	RunID   string
}

// Empty is what readers see when no usable snapshot exists.
func Empty() File {
	return File{Screenings: []cinema.Screening{}}
}

type fileJSON struct {
	Screenings      []cinema.Screening `json:"screenings"`
	GeneratedAt     *string            `json:"generated_at"`
	TotalScreenings int                `json:"total_screenings"`
	Cinemas         int                `json:"cinemas,omitempty"`
	Stats           []VenueStat        `json:"stats,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
}

func (f File) MarshalJSON() ([]byte, error) {
	out := fileJSON{
		Screenings:      f.Screenings,
		TotalScreenings: f.TotalScreenings,
		Cinemas:         f.Cinemas,
		Stats:           f.Stats,
		RunID:           f.RunID,
	}
	if out.Screenings == nil {
		out.Screenings = []cinema.Screening{}
	}
	if f.GeneratedAt != nil {
		generatedAt := cinema.FormatTime(*f.GeneratedAt)
		out.GeneratedAt = &generatedAt
	}
	return json.Marshal(out)
}

func (f *File) UnmarshalJSON(data []byte) error {
	var in fileJSON
	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}
	*f = File{
		Screenings:      in.Screenings,
		TotalScreenings: in.TotalScreenings,
		Cinemas:         in.Cinemas,
		Stats:           in.Stats,
		RunID:           in.RunID,
	}
	if f.Screenings == nil {
		f.Screenings = []cinema.Screening{}
	}
	if in.GeneratedAt != nil && *in.GeneratedAt != "" {
		generatedAt, err := timezone.Parse(*in.GeneratedAt)
		if err != nil {
			return fmt.Errorf("generated_at: %w", err)
		}
		f.GeneratedAt = &generatedAt
	}
	return nil
}

// Store is the snapshot file at a fixed path. There is at most one writer,
// readers never observe a partially written file because writes replace
// the file with a rename.
type Store struct {
	path string
	tel  telemetry.API
}

func NewStore(path string, tel telemetry.API) Store {
	assert.NotEmptyStr(path)
	assert.NotNil(tel)

	return Store{
		path: path,
		tel:  telemetry.NewScopedAPI("snapshot", tel),
	}
}

func (s Store) Path() string {
	return s.path
}

// Write atomically replaces the snapshot with `file`.
func (s Store) Write(file File) error {
	err := s.write(file)
	if err != nil {
		s.tel.ReportBroken(report_store_write, err, s.path)
		return err
	}
	s.tel.ReportDebug("wrote snapshot", s.path, file.TotalScreenings)
	return nil
}

func (s Store) write(file File) (err error) {
	dir := filepath.Dir(s.path)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(file)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	err = os.Chmod(tmp.Name(), 0644)
	if err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	err = os.Rename(tmp.Name(), s.path)
	if err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Read returns the snapshot, the error wraps os.ErrNotExist when no snapshot
// has been written yet.
func (s Store) Read() (File, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		return File{}, err
	}
	var file File
	err = json.Unmarshal(contents, &file)
	if err != nil {
		return File{}, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return file, nil
}

// Load is Read for serving: a missing or corrupt snapshot yields Empty.
func (s Store) Load() File {
	file, err := s.Read()
	if errors.Is(err, os.ErrNotExist) {
		s.tel.ReportDebug("no snapshot yet", s.path)
		return Empty()
	}
	if err != nil {
		s.tel.ReportWarning(report_store_read, err)
		return Empty()
	}
	return file
}
