package main

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"infra-risk-api/risk"
	"infra-risk-api/services"
)

type ReportPayload struct {
	TS        string   `json:"ts"`
	ReportID  string   `json:"report_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Severity  string   `json:"severity"`
	Category  string   `json:"category"`
	City      string   `json:"city"`
}

var (
	errMissingID     = eris.New("missing report_id")
	errMissingCoords = eris.New("missing coordinates")
	errBadCoords     = eris.New("coordinates out of range")
)

// Validate rejects payloads the engine could never place on the map.
func (p ReportPayload) Validate() error {
	if p.ReportID == "" {
		return errMissingID
	}
	if p.Latitude == nil || p.Longitude == nil {
		return errMissingCoords
	}
	lat, lon := *p.Latitude, *p.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return errBadCoords
	}
	return nil
}

// Timestamp parses ts as RFC 3339 and falls back to now.
func (p ReportPayload) Timestamp(now time.Time) time.Time {
	if p.TS != "" {
		if parsed, err := time.Parse(time.RFC3339, p.TS); err == nil {
			return parsed.UTC()
		}
	}
	return now.UTC()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

const insertReport = `
	INSERT INTO reports (id, latitude, longitude, severity, category, city, status, created_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), 'pending', $7)
	ON CONFLICT (id) DO NOTHING`

type ingester struct {
	db  execer
	pub publisher
}

type ingestOutcome int

const (
	outcomeRejected ingestOutcome = iota
	outcomeStored
	outcomeDuplicate
	outcomeFailed
)

func (in *ingester) processMessage(ctx context.Context, payloadRaw []byte) ingestOutcome {
	msgsReceived.Inc()

	var payload ReportPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		msgsFailed.Inc()
		zap.L().Warn("collector: invalid payload", zap.Error(err))
		return outcomeRejected
	}
	if err := payload.Validate(); err != nil {
		msgsFailed.Inc()
		zap.L().Warn("collector: rejected report", zap.String("report_id", payload.ReportID), zap.Error(err))
		return outcomeRejected
	}
	// Unknown severities are stored as sent; the engine weights them as unknown.
	if !risk.ParseSeverity(payload.Severity).IsValid() {
		zap.L().Debug("collector: unrecognised severity",
			zap.String("report_id", payload.ReportID),
			zap.String("severity", payload.Severity),
		)
	}

	tag, err := in.db.Exec(ctx, insertReport,
		payload.ReportID, *payload.Latitude, *payload.Longitude,
		payload.Severity, payload.Category, payload.City, payload.Timestamp(time.Now()))
	if err != nil {
		msgsFailed.Inc()
		zap.L().Error("collector: db insert failed", zap.String("report_id", payload.ReportID), zap.Error(err))
		return outcomeFailed
	}
	if tag.RowsAffected() == 0 {
		msgsDuplicate.Inc()
		return outcomeDuplicate
	}

	msgsStored.Inc()

	if err := in.pub.Publish(ctx, services.ReportsChannel, json.RawMessage(payloadRaw)); err != nil {
		zap.L().Warn("collector: redis publish failed", zap.String("report_id", payload.ReportID), zap.Error(err))
	}
	return outcomeStored
}
