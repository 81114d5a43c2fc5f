// Package store persists decoded annotation sets in per-session DuckDB
// files so viewport queries don't keep whole freehand outlines in memory.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/marcboeker/go-duckdb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ndpa-visualizer/backend/internal/models"
)

// AnnotationStore stores one decode session's annotations. Point lists are
// msgpack blobs; bounding boxes are materialized into columns so viewport
// queries stay in SQL.
type AnnotationStore struct {
	db        *sql.DB
	dbPath    string
	count     int
	batchSize int
	batch     []*models.Annotation
	lastError error
}

// NewAnnotationStore creates a new DuckDB-backed store in the given temp
// directory.
func NewAnnotationStore(tempDir string, sessionID string) (*AnnotationStore, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("session_%s.duckdb", sessionID))
	return NewAnnotationStoreAtPath(dbPath)
}

// NewAnnotationStoreAtPath creates a new DuckDB-backed store at a specific
// path.
func NewAnnotationStoreAtPath(dbPath string) (*AnnotationStore, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE annotations (
			idx         INTEGER PRIMARY KEY,
			title       VARCHAR NOT NULL,
			details     VARCHAR,
			ann_type    VARCHAR NOT NULL,
			coordformat VARCHAR NOT NULL,
			displayname VARCHAR NOT NULL,
			color       VARCHAR NOT NULL,
			lens        DOUBLE,
			z           DOUBLE,
			radius      DOUBLE,
			num_points  INTEGER NOT NULL,
			min_x       DOUBLE NOT NULL,
			min_y       DOUBLE NOT NULL,
			max_x       DOUBLE NOT NULL,
			max_y       DOUBLE NOT NULL,
			points      BLOB NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &AnnotationStore{
		db:        db,
		dbPath:    dbPath,
		batchSize: 512,
		batch:     make([]*models.Annotation, 0, 512),
	}, nil
}

// AddAnnotation appends an annotation to the store, preserving insertion
// order as the idx column. Writes are batched.
func (as *AnnotationStore) AddAnnotation(ann *models.Annotation) {
	as.batch = append(as.batch, ann)
	as.count++

	if len(as.batch) >= as.batchSize {
		if err := as.flushBatch(); err != nil {
			as.lastError = err
			fmt.Printf("[AnnStore] flush error: %v\n", err)
		}
	}
}

// LastError returns the last error that occurred during a batch flush.
func (as *AnnotationStore) LastError() error {
	return as.lastError
}

// flushBatch writes the current batch using the native Appender API.
func (as *AnnotationStore) flushBatch() error {
	if len(as.batch) == 0 {
		return nil
	}

	conn, err := as.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "annotations")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseIdx := as.count - len(as.batch)
		for i, ann := range as.batch {
			blob, err := msgpack.Marshal(ann.Points)
			if err != nil {
				return fmt.Errorf("failed to encode points for row %d: %w", i, err)
			}
			minX, minY, maxX, maxY := bounds(ann)

			err = appender.AppendRow(
				int32(baseIdx+i),
				ann.Title,
				ann.Details,
				string(ann.Type),
				string(ann.CoordFormat),
				ann.DisplayName,
				ann.Color,
				ann.Lens,
				ann.Z,
				ann.Radius,
				int32(len(ann.Points)),
				minX,
				minY,
				maxX,
				maxY,
				blob,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	as.batch = as.batch[:0]
	return nil
}

// Finalize flushes any pending annotations.
func (as *AnnotationStore) Finalize() error {
	return as.flushBatch()
}

// Len returns the number of stored annotations.
func (as *AnnotationStore) Len() int {
	return as.count
}

// Get returns the annotation at the given source position.
func (as *AnnotationStore) Get(ctx context.Context, idx int) (*models.Annotation, error) {
	rows, err := as.db.QueryContext(ctx,
		`SELECT title, details, ann_type, coordformat, displayname, color,
		        lens, z, radius, points
		 FROM annotations WHERE idx = ?`, idx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("annotation %d not found", idx)
	}
	return scanAnnotation(rows)
}

// List returns annotations [start, end) in source order.
func (as *AnnotationStore) List(ctx context.Context, start, end int) ([]models.Annotation, error) {
	if start < 0 {
		start = 0
	}
	if end > as.count {
		end = as.count
	}
	if start >= end {
		return []models.Annotation{}, nil
	}

	rows, err := as.db.QueryContext(ctx,
		`SELECT title, details, ann_type, coordformat, displayname, color,
		        lens, z, radius, points
		 FROM annotations
		 WHERE idx >= ? AND idx < ?
		 ORDER BY idx`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnnotations(rows, end-start)
}

// QueryViewport returns annotations whose bounding box intersects the given
// rectangle, in source order. Coordinates are in the unit system the session
// was decoded with.
func (as *AnnotationStore) QueryViewport(ctx context.Context, minX, minY, maxX, maxY float64) ([]models.Annotation, error) {
	rows, err := as.db.QueryContext(ctx,
		`SELECT title, details, ann_type, coordformat, displayname, color,
		        lens, z, radius, points
		 FROM annotations
		 WHERE max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?
		 ORDER BY idx`, minX, maxX, minY, maxY)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnnotations(rows, 16)
}

// Close closes the database and removes the backing file.
func (as *AnnotationStore) Close() error {
	if as.db != nil {
		as.db.Close()
		as.db = nil
	}
	if as.dbPath != "" {
		if err := os.Remove(as.dbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func collectAnnotations(rows *sql.Rows, sizeHint int) ([]models.Annotation, error) {
	out := make([]models.Annotation, 0, sizeHint)
	for rows.Next() {
		ann, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ann)
	}
	return out, rows.Err()
}

func scanAnnotation(rows *sql.Rows) (*models.Annotation, error) {
	var ann models.Annotation
	var annType, coordFormat string
	var blob []byte

	err := rows.Scan(&ann.Title, &ann.Details, &annType, &coordFormat,
		&ann.DisplayName, &ann.Color, &ann.Lens, &ann.Z, &ann.Radius, &blob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan annotation: %w", err)
	}

	ann.Type = models.AnnotationType(annType)
	ann.CoordFormat = models.CoordFormat(coordFormat)
	if err := msgpack.Unmarshal(blob, &ann.Points); err != nil {
		return nil, fmt.Errorf("failed to decode points: %w", err)
	}
	return &ann, nil
}

// bounds computes an annotation's bounding box. A circle's radius widens the
// box around its centre point.
func bounds(ann *models.Annotation) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range ann.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	if ann.Type == models.TypeCircle && ann.Radius > 0 {
		minX -= ann.Radius
		minY -= ann.Radius
		maxX += ann.Radius
		maxY += ann.Radius
	}
	return minX, minY, maxX, maxY
}
