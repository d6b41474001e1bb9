// Package store persists scans, findings and raw inference outputs on top
// of the generic database.DB backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/CosmoTheDev/codesense/internal/database"
	"github.com/CosmoTheDev/codesense/models"
)

// ErrNotFound is returned when a scan does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract used by the scanner and the gateway.
type Store interface {
	CreateScan(ctx context.Context, scan *models.Scan) error
	// UpsertScanProgress writes only the fields set on u.
	UpsertScanProgress(ctx context.Context, scanID string, u models.ScanUpdate) error
	GetScan(ctx context.Context, scanID string) (*models.Scan, error)
	ListScans(ctx context.Context, limit int) ([]models.Scan, error)

	// InsertFindings is idempotent on Finding.UniqueKey.
	InsertFindings(ctx context.Context, findings []models.Finding) error
	// ListFindings returns one page of a scan's findings, most severe first,
	// plus the total count.
	ListFindings(ctx context.Context, scanID string, limit, offset int) ([]models.Finding, int, error)
	SeverityCounts(ctx context.Context, scanID string) (map[models.SeverityLevel]int, error)

	SaveRawOutput(ctx context.Context, raw RawOutput) error
	RawOutputs(ctx context.Context, scanID, filePath string) ([]RawOutput, error)
}

// RawOutput is one chunk's inference answer, kept for audit and replay.
type RawOutput struct {
	ScanID     string    `json:"scan_id"`
	FilePath   string    `json:"file_path"`
	ChunkIndex int       `json:"chunk_index"`
	PromptHash string    `json:"prompt_hash"`
	Output     string    `json:"output"`
	CreatedAt  time.Time `json:"created_at"`
}

type rawOutputRow struct {
	ID         int64     `db:"id"`
	ScanID     string    `db:"scan_id"`
	FilePath   string    `db:"file_path"`
	ChunkIndex int       `db:"chunk_index"`
	PromptHash string    `db:"prompt_hash"`
	Output     []byte    `db:"output"`
	CreatedAt  time.Time `db:"created_at"`
}

type countRow struct {
	N int `db:"n"`
}

type severityRow struct {
	Severity string `db:"severity"`
	N        int    `db:"n"`
}

// SQLStore implements Store over a database.DB.
type SQLStore struct {
	db  database.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// New wraps db. The schema must already be migrated.
func New(db database.DB) (*SQLStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &SQLStore{db: db, enc: enc, dec: dec, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the codec resources. The underlying DB stays open.
func (s *SQLStore) Close() {
	s.dec.Close()
	_ = s.enc.Close()
}

func (s *SQLStore) CreateScan(ctx context.Context, scan *models.Scan) error {
	if scan.LastUpdated.IsZero() {
		scan.LastUpdated = s.now()
	}
	if _, err := s.db.Insert(ctx, "scans", scan); err != nil {
		return fmt.Errorf("creating scan %s: %w", scan.ID, err)
	}
	return nil
}

func (s *SQLStore) UpsertScanProgress(ctx context.Context, scanID string, u models.ScanUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.TotalFiles != nil {
		add("total_files", *u.TotalFiles)
	}
	if u.FilesScanned != nil {
		add("files_scanned", *u.FilesScanned)
	}
	if u.FailedFiles != nil {
		add("failed_files", *u.FailedFiles)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Findings != nil {
		add("findings", *u.Findings)
	}
	if u.EndTime != nil {
		add("end_time", *u.EndTime)
	}
	if u.ErrorMsg != nil {
		add("error_msg", *u.ErrorMsg)
	}
	add("last_updated", s.now())
	args = append(args, scanID)

	// Column names are fixed above; values are bound.
	query := "UPDATE scans SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating scan %s progress: %w", scanID, err)
	}
	return nil
}

func (s *SQLStore) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	var rows []models.Scan
	if err := s.db.Select(ctx, &rows, `SELECT * FROM scans WHERE id = ?`, scanID); err != nil {
		return nil, fmt.Errorf("loading scan %s: %w", scanID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	return &rows[0], nil
}

func (s *SQLStore) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Scan
	if err := s.db.Select(ctx, &rows, `SELECT * FROM scans ORDER BY start_time DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return rows, nil
}

// InsertFindings stores one file's findings in a single transaction, so a
// failure leaves none of them behind.
func (s *SQLStore) InsertFindings(ctx context.Context, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx database.Tx) error {
		for i := range findings {
			f := findings[i]
			f.ID = 0
			if err := tx.Upsert(ctx, "findings", &f, []string{"unique_key"}); err != nil {
				return fmt.Errorf("storing finding %q for %s: %w", f.Title, f.SourcePath, err)
			}
		}
		return nil
	})
}

const severityOrder = `CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`

func (s *SQLStore) ListFindings(ctx context.Context, scanID string, limit, offset int) ([]models.Finding, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var total countRow
	if err := s.db.Get(ctx, &total,
		`SELECT COUNT(*) AS n FROM findings WHERE scan_id = ? AND deleted = 0`, scanID); err != nil {
		return nil, 0, fmt.Errorf("counting findings for %s: %w", scanID, err)
	}
	var rows []models.Finding
	err := s.db.Select(ctx, &rows,
		`SELECT * FROM findings WHERE scan_id = ? AND deleted = 0
		 ORDER BY `+severityOrder+` DESC, source_path, line_start, id
		 LIMIT ? OFFSET ?`, scanID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing findings for %s: %w", scanID, err)
	}
	return rows, total.N, nil
}

// SeverityCounts always carries all four canonical levels.
func (s *SQLStore) SeverityCounts(ctx context.Context, scanID string) (map[models.SeverityLevel]int, error) {
	var rows []severityRow
	err := s.db.Select(ctx, &rows,
		`SELECT severity, COUNT(*) AS n FROM findings
		 WHERE scan_id = ? AND deleted = 0 GROUP BY severity`, scanID)
	if err != nil {
		return nil, fmt.Errorf("counting severities for %s: %w", scanID, err)
	}
	out := make(map[models.SeverityLevel]int, len(models.AllSeverities))
	for _, sev := range models.AllSeverities {
		out[sev] = 0
	}
	for _, r := range rows {
		out[models.SeverityLevel(r.Severity)] += r.N
	}
	return out, nil
}

func (s *SQLStore) SaveRawOutput(ctx context.Context, raw RawOutput) error {
	created := raw.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	row := rawOutputRow{
		ScanID:     raw.ScanID,
		FilePath:   raw.FilePath,
		ChunkIndex: raw.ChunkIndex,
		PromptHash: raw.PromptHash,
		Output:     s.enc.EncodeAll([]byte(raw.Output), nil),
		CreatedAt:  created,
	}
	if _, err := s.db.Insert(ctx, "scan_raw_outputs", &row); err != nil {
		return fmt.Errorf("storing raw output for %s chunk %d: %w", raw.FilePath, raw.ChunkIndex, err)
	}
	return nil
}

// RawOutputs returns a scan's stored answers in chunk order. An empty
// filePath returns every file.
func (s *SQLStore) RawOutputs(ctx context.Context, scanID, filePath string) ([]RawOutput, error) {
	query := `SELECT * FROM scan_raw_outputs WHERE scan_id = ?`
	args := []any{scanID}
	if filePath != "" {
		query += ` AND file_path = ?`
		args = append(args, filePath)
	}
	query += ` ORDER BY file_path, chunk_index, id`

	var rows []rawOutputRow
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading raw outputs for %s: %w", scanID, err)
	}
	out := make([]RawOutput, 0, len(rows))
	for _, r := range rows {
		text, err := s.dec.DecodeAll(r.Output, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing raw output %d: %w", r.ID, err)
		}
		out = append(out, RawOutput{
			ScanID:     r.ScanID,
			FilePath:   r.FilePath,
			ChunkIndex: r.ChunkIndex,
			PromptHash: r.PromptHash,
			Output:     string(text),
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}
