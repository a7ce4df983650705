package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"solarscan/internal/types"
)

// Result payloads are stored as zstd-compressed JSON. Both the encoder and the
// decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	payloadEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	payloadDecoder, _ = zstd.NewReader(nil)
)

func encodePayload(res *types.AnalysisResult) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return payloadEncoder.EncodeAll(raw, nil), nil
}

func decodePayload(data []byte) (*types.AnalysisResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := payloadDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing result: %w", err)
	}
	var res types.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &res, nil
}

// AnalysisRepository archives terminal analysis snapshots in the
// analysis_requests table. Contact emails are never persisted.
type AnalysisRepository struct {
	db DBTX
}

// NewAnalysisRepository creates a new AnalysisRepository backed by the given
// database connection (pool or transaction).
func NewAnalysisRepository(db DBTX) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save upserts a snapshot keyed by request id.
func (r *AnalysisRepository) Save(ctx context.Context, req types.AnalysisRequest) error {
	payload, err := encodePayload(req.Result)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode analysis result", err)
	}
	var code, message *string
	if req.Failure != nil {
		code = nilIfEmpty(string(req.Failure.Code))
		message = nilIfEmpty(req.Failure.Message)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO analysis_requests
		 (id, fingerprint, building_type, address, status, result,
		  failure_code, failure_message, created_at, completed_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		   SET status = EXCLUDED.status,
		       result = EXCLUDED.result,
		       failure_code = EXCLUDED.failure_code,
		       failure_message = EXCLUDED.failure_message,
		       completed_at = EXCLUDED.completed_at,
		       expires_at = EXCLUDED.expires_at`,
		req.ID,
		req.Fingerprint,
		string(req.BuildingType),
		req.Address,
		string(req.Status),
		payload,
		code,
		message,
		req.CreatedAt,
		req.CompletedAt,
		req.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save analysis", err)
	}
	return nil
}

const selectRequest = `SELECT id, fingerprint, building_type, address, status, result,
        failure_code, failure_message, created_at, completed_at, expires_at
 FROM analysis_requests`

// Get loads a snapshot. It returns nil, nil when the id is unknown or not a
// valid request id.
func (r *AnalysisRepository) Get(ctx context.Context, id string) (*types.AnalysisRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return scanRequest(r.db.QueryRow(ctx, selectRequest+`
 WHERE id = $1`,
		id,
	))
}

// FindCompleted returns the newest completed snapshot for fingerprint that
// has not expired at now, or nil, nil when there is none.
func (r *AnalysisRepository) FindCompleted(ctx context.Context, fingerprint string, now time.Time) (*types.AnalysisRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, selectRequest+`
 WHERE fingerprint = $1 AND status = 'completed'
   AND (expires_at IS NULL OR expires_at > $2)
 ORDER BY completed_at DESC
 LIMIT 1`,
		fingerprint, now,
	))
}

func scanRequest(row pgx.Row) (*types.AnalysisRequest, error) {
	var (
		req                types.AnalysisRequest
		bt, status         string
		payload            []byte
		failCode, failMsg  *string
		completed, expires *time.Time
	)
	err := row.Scan(&req.ID, &req.Fingerprint, &bt, &req.Address, &status, &payload,
		&failCode, &failMsg, &req.CreatedAt, &completed, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load analysis", err)
	}

	req.BuildingType = types.BuildingType(bt)
	req.Status = types.AnalysisStatus(status)
	req.CompletedAt = completed
	req.ExpiresAt = expires
	if failCode != nil {
		f := types.Failure{Code: types.ErrorCode(*failCode)}
		if failMsg != nil {
			f.Message = *failMsg
		}
		req.Failure = &f
	}
	if req.Result, err = decodePayload(payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt analysis payload", err)
	}
	return &req, nil
}

// DeleteExpired removes rows whose expiry is at or before now and reports how
// many were deleted.
func (r *AnalysisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM analysis_requests WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge expired analyses", err)
	}
	return tag.RowsAffected(), nil
}
