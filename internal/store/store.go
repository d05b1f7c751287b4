// Package store implements the document record store on PostgreSQL. All
// status changes go through conditional whole-row writes, so concurrent
// invocations racing on the same identity serialize at the database: the
// losing writer observes zero affected rows and gets ErrStatusConflict.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/postgres"
)

// Store is the PostgreSQL-backed record store. It does no logging of its own;
// every failure is returned as an error for the caller to classify.
type Store struct {
	db *postgres.Client
}

// New creates a Store on top of the given PostgreSQL client.
func New(db *postgres.Client) *Store {
	return &Store{db: db}
}

const documentColumns = `id, source_key, file_name, content_type, status, upload_time,
	processing_started_at, processed_time, extraction_result, entities, error_message`

// Create inserts a new record in UPLOADED. The insert is atomic: if the
// identity already exists nothing is written and ErrRecordExists is returned.
func (s *Store) Create(ctx context.Context, doc *document.Document) error {
	res, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, source_key, file_name, content_type, status, upload_time)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.SourceKey, nullableString(doc.FileName), nullableString(doc.ContentType),
		string(document.StatusUploaded), doc.UploadTime,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result for %s: %w", doc.ID, err)
	}
	if rows == 0 {
		return apperrors.ErrRecordExists
	}
	return nil
}

// Get returns the current record for the given identity.
func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	return doc, nil
}

// AcquireProcessing flips the record into PROCESSING and stamps the lease.
// The write succeeds only when the record is claimable: UPLOADED, ERROR
// (redelivery retry), or PROCESSING whose lease is older than staleAfter
// (abandoned invocation takeover). A concurrent holder or a terminal
// PROCESSED record yields ErrStatusConflict and the caller must stop.
func (s *Store) AcquireProcessing(ctx context.Context, id string, staleAfter time.Duration) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents
		 SET status = $2, processing_started_at = now()
		 WHERE id = $1
		   AND (status = $3 OR status = $4
		        OR (status = $2 AND processing_started_at < now() - $5::interval))`,
		id, string(document.StatusProcessing),
		string(document.StatusUploaded), string(document.StatusError),
		staleAfter.String(),
	)
	if err != nil {
		return fmt.Errorf("acquiring processing for %s: %w", id, err)
	}
	return s.requireRow(res, id)
}

// MarkProcessed writes the terminal PROCESSED state with the extraction
// payloads. Guarded on PROCESSING so it can never overwrite another
// invocation's terminal write.
func (s *Store) MarkProcessed(ctx context.Context, id string, result, entities json.RawMessage) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents
		 SET status = $2, processed_time = now(), extraction_result = $3, entities = $4
		 WHERE id = $1 AND status = $5`,
		id, string(document.StatusProcessed), []byte(result), []byte(entities),
		string(document.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("marking document %s processed: %w", id, err)
	}
	return s.requireRow(res, id)
}

// MarkFailed writes the terminal ERROR state with a failure description,
// guarded on PROCESSING like MarkProcessed.
func (s *Store) MarkFailed(ctx context.Context, id string, message string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents
		 SET status = $2, error_message = $3
		 WHERE id = $1 AND status = $4`,
		id, string(document.StatusError), message,
		string(document.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("marking document %s failed: %w", id, err)
	}
	return s.requireRow(res, id)
}

// StaleProcessing returns documents stuck in PROCESSING whose lease is older
// than olderThan, oldest first, for the reconciliation sweep.
func (s *Store) StaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]document.DispatchMessage, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, source_key FROM documents
		 WHERE status = $1 AND processing_started_at < now() - $2::interval
		 ORDER BY processing_started_at ASC
		 LIMIT $3`,
		string(document.StatusProcessing), olderThan.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stale processing documents: %w", err)
	}
	defer rows.Close()

	var stale []document.DispatchMessage
	for rows.Next() {
		var msg document.DispatchMessage
		if err := rows.Scan(&msg.DocumentID, &msg.SourceKey); err != nil {
			return nil, fmt.Errorf("scanning stale document: %w", err)
		}
		stale = append(stale, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale documents: %w", err)
	}
	return stale, nil
}

// requireRow converts a zero-row conditional write into ErrStatusConflict.
func (s *Store) requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result for %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("document %s: %w", id, apperrors.ErrStatusConflict)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		doc         document.Document
		fileName    sql.NullString
		contentType sql.NullString
		status      string
		started     sql.NullTime
		processed   sql.NullTime
		result      []byte
		entities    []byte
		errMsg      sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.SourceKey, &fileName, &contentType, &status,
		&doc.UploadTime, &started, &processed, &result, &entities, &errMsg)
	if err != nil {
		return nil, err
	}
	doc.Status, err = document.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	doc.FileName = fileName.String
	doc.ContentType = contentType.String
	if started.Valid {
		t := started.Time
		doc.ProcessingStartedAt = &t
	}
	if processed.Valid {
		t := processed.Time
		doc.ProcessedTime = &t
	}
	doc.ExtractionResult = json.RawMessage(result)
	doc.Entities = json.RawMessage(entities)
	doc.ErrorMessage = errMsg.String
	return &doc, nil
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
