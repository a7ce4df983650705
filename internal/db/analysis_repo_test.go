package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"solarscan/internal/types"
)

const testRequestID = "0b9f2c2e-4b1a-4c57-9d4e-2a7f3f1e8c11"

func completedRequest() types.AnalysisRequest {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	completed := created.Add(4 * time.Second)
	expires := completed.Add(24 * time.Hour)
	payback := 131.5
	return types.AnalysisRequest{
		ID:           testRequestID,
		Fingerprint:  "fp",
		BuildingType: types.BuildingHouse,
		Address:      "경기도 수원시 영통구 광교로 156",
		Email:        "owner@example.com",
		Status:       types.StatusCompleted,
		CreatedAt:    created,
		CompletedAt:  &completed,
		ExpiresAt:    &expires,
		Result: &types.AnalysisResult{
			Fingerprint: "fp",
			Yield:       types.YieldEstimate{CapacityKW: 18, AnnualKWh: 3650},
			Economics:   types.EconomicProfile{Currency: "KRW", NetCost: 72_000_000, PaybackYears: &payback},
			Confidence:  types.Confidence{Score: 0.95, Flags: []types.ConfidenceFlag{}},
		},
	}
}

func TestAnalysisRepository_Save(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	req := completedRequest()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		if len(args) != 11 || args[0] != testRequestID || args[4] != "completed" {
			return false
		}
		for _, a := range args {
			if a == "owner@example.com" {
				return false
			}
		}
		payload, ok := args[5].([]byte)
		return ok && len(payload) > 0 && args[6] == (*string)(nil)
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Save(context.Background(), req))
	db.AssertExpectations(t)
}

func TestAnalysisRepository_SaveFailure(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)

	req := types.AnalysisRequest{
		ID:     testRequestID,
		Status: types.StatusFailed,
		Failure: &types.Failure{
			Code:    types.ErrCodeNoClimateData,
			Message: "no climate data",
		},
	}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		code, ok := args[6].(*string)
		payload, _ := args[5].([]byte)
		return ok && code != nil && *code == "no_climate_data" && payload == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Save(context.Background(), req))
	db.AssertExpectations(t)
}

func TestAnalysisRepository_SaveDBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, errors.New("connection reset"))

	assertDBError(t, repo.Save(context.Background(), completedRequest()))
}

func TestAnalysisRepository_GetRoundTripsPayload(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	want := completedRequest()
	payload, err := encodePayload(want.Result)
	require.NoError(t, err)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = want.ID
		*dest[1].(*string) = want.Fingerprint
		*dest[2].(*string) = string(want.BuildingType)
		*dest[3].(*string) = want.Address
		*dest[4].(*string) = string(want.Status)
		*dest[5].(*[]byte) = payload
		*dest[8].(*time.Time) = want.CreatedAt
		*dest[9].(**time.Time) = want.CompletedAt
		*dest[10].(**time.Time) = want.ExpiresAt
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{testRequestID}).Return(row)

	got, err := repo.Get(context.Background(), testRequestID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Empty(t, got.Email)
	assert.Nil(t, got.Failure)
	require.NotNil(t, got.Result)
	assert.Equal(t, want.Result.Yield.AnnualKWh, got.Result.Yield.AnnualKWh)
	assert.Equal(t, *want.Result.Economics.PaybackYears, *got.Result.Economics.PaybackYears)
	assert.Equal(t, want.ExpiresAt, got.ExpiresAt)
}

func TestAnalysisRepository_GetFailedRow(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	code, msg := "timeout_exceeded", "analysis exceeded its time budget"

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = testRequestID
		*dest[4].(*string) = "failed"
		*dest[6].(**string) = &code
		*dest[7].(**string) = &msg
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row)

	got, err := repo.Get(context.Background(), testRequestID)
	require.NoError(t, err)
	require.NotNil(t, got.Failure)
	assert.Equal(t, types.ErrCodeTimeout, got.Failure.Code)
	assert.Equal(t, msg, got.Failure.Message)
	assert.Nil(t, got.Result)
}

func TestAnalysisRepository_GetMissing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	got, err := repo.Get(context.Background(), testRequestID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalysisRepository_GetInvalidIDSkipsQuery(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)

	got, err := repo.Get(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, got)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisRepository_GetCorruptPayload(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[5].(*[]byte) = []byte("not zstd")
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row)

	_, err := repo.Get(context.Background(), testRequestID)
	assertDBError(t, err)
}

func TestAnalysisRepository_FindCompleted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	want := completedRequest()
	payload, err := encodePayload(want.Result)
	require.NoError(t, err)
	now := want.CompletedAt.Add(time.Hour)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = want.ID
		*dest[1].(*string) = want.Fingerprint
		*dest[4].(*string) = string(want.Status)
		*dest[5].(*[]byte) = payload
		*dest[10].(**time.Time) = want.ExpiresAt
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "fingerprint = $1") && strings.Contains(sql, "expires_at > $2")
	}), []any{"fp", now}).Return(row)

	got, err := repo.FindCompleted(context.Background(), "fp", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testRequestID, got.ID)
	assert.Equal(t, types.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, want.Result.Yield.AnnualKWh, got.Result.Yield.AnnualKWh)
}

func TestAnalysisRepository_FindCompletedMissing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	got, err := repo.FindCompleted(context.Background(), "fp", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalysisRepository_DeleteExpired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{now}).
		Return(pgconn.NewCommandTag("DELETE 7"), nil).Once()
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{now}).
		Return(pgconn.CommandTag{}, errors.New("timeout")).Once()
	_, err = repo.DeleteExpired(context.Background(), now)
	assertDBError(t, err)
	db.AssertExpectations(t)
}
