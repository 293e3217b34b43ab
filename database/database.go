package database

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/fleetinspectbackend/models"
)

// statementBuilder always emits "?" placeholders; gorm rebinds them for the
// connected dialect when the statement runs through Raw.
func statementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// RecentReadingValues returns the values of the latest readings of one asset
// and reading type, newest first. Only readings of current (non-superseded)
// analysis results count, and readings a reviewer rejected are left out;
// automated outliers stay in the window so a legitimate jump in the meter
// moves the mean.
// Readings of excludePhotoID are skipped so a re-analysis never compares a
// photo against itself.
func RecentReadingValues(db *gorm.DB, assetID string, readingType models.ReadingType, excludePhotoID string, limit int) ([]float64, error) {
	if limit <= 0 {
		return nil, nil
	}
	readings := models.MeterReading{}.TableName()
	results := models.AnalysisResult{}.TableName()

	where := sq.And{
		sq.Eq{"mr.asset_id": assetID},
		sq.Eq{"mr.reading_type": string(readingType)},
		sq.Eq{"ar.superseded": false},
		sq.Or{
			sq.Eq{"mr.validated_by": nil},
			sq.Eq{"mr.is_valid": true},
		},
	}
	if excludePhotoID != "" {
		where = append(where, sq.NotEq{"mr.photo_id": excludePhotoID})
	}

	queryBuilder := statementBuilder().Select("mr.value").
		From(readings + " AS mr").
		Join(results + " AS ar ON ar.id = mr.analysis_result_id").
		Where(where).
		OrderBy("mr.created_at DESC").
		Limit(uint64(limit))

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for RecentReadingValues: %w", err)
	}

	var values []float64
	if err := db.Raw(sqlStr, args...).Scan(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to query reading history for asset %s (%s): %w", assetID, readingType, err)
	}
	return values, nil
}
