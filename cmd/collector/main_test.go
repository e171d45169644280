package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infra-risk-api/services"
)

type fakePublisher struct {
	channels []string
	payloads []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, string(data))
	return nil
}

func fptr(v float64) *float64 { return &v }

func TestReportPayloadValidate(t *testing.T) {
	tests := []struct {
		name string
		p    ReportPayload
		want error
	}{
		{"valid", ReportPayload{ReportID: "r1", Latitude: fptr(19.07), Longitude: fptr(72.87)}, nil},
		{"origin is a real place", ReportPayload{ReportID: "r1", Latitude: fptr(0), Longitude: fptr(0)}, nil},
		{"poles and antimeridian", ReportPayload{ReportID: "r1", Latitude: fptr(-90), Longitude: fptr(180)}, nil},
		{"missing id", ReportPayload{Latitude: fptr(1), Longitude: fptr(1)}, errMissingID},
		{"missing latitude", ReportPayload{ReportID: "r1", Longitude: fptr(1)}, errMissingCoords},
		{"latitude too large", ReportPayload{ReportID: "r1", Latitude: fptr(90.5), Longitude: fptr(1)}, errBadCoords},
		{"longitude too small", ReportPayload{ReportID: "r1", Latitude: fptr(1), Longitude: fptr(-180.1)}, errBadCoords},
		{"nan", ReportPayload{ReportID: "r1", Latitude: fptr(math.NaN()), Longitude: fptr(1)}, errBadCoords},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, eris.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReportPayloadTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	p := ReportPayload{TS: "2026-07-15T10:30:00+05:30"}
	assert.Equal(t, time.Date(2026, 7, 15, 5, 0, 0, 0, time.UTC), p.Timestamp(now))

	assert.Equal(t, now, ReportPayload{}.Timestamp(now))
	assert.Equal(t, now, ReportPayload{TS: "last tuesday"}.Timestamp(now))
}

func newTestIngester(t *testing.T) (*ingester, pgxmock.PgxPoolIface, *fakePublisher) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	pub := &fakePublisher{}
	return &ingester{db: mock, pub: pub}, mock, pub
}

const validPayload = `{"ts":"2026-07-15T10:30:00Z","report_id":"r-100","latitude":19.07,"longitude":72.87,"severity":"critical","category":"pothole","city":"Mumbai"}`

func TestProcessMessageStores(t *testing.T) {
	in, mock, pub := newTestIngester(t)

	mock.ExpectExec("INSERT INTO reports").
		WithArgs("r-100", 19.07, 72.87, "critical", "pothole", "Mumbai", time.Date(2026, 7, 15, 10, 30, 0, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.Equal(t, outcomeStored, in.processMessage(context.Background(), []byte(validPayload)))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{services.ReportsChannel}, pub.channels)
	assert.JSONEq(t, validPayload, pub.payloads[0])
}

func TestProcessMessageDuplicate(t *testing.T) {
	in, mock, pub := newTestIngester(t)

	mock.ExpectExec("INSERT INTO reports").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	assert.Equal(t, outcomeDuplicate, in.processMessage(context.Background(), []byte(validPayload)))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.payloads)
}

func TestProcessMessageKeepsUnknownSeverity(t *testing.T) {
	in, mock, _ := newTestIngester(t)

	mock.ExpectExec("INSERT INTO reports").
		WithArgs("r-7", 19.0, 72.0, "Severe", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	raw := `{"report_id":"r-7","latitude":19.0,"longitude":72.0,"severity":"Severe"}`
	assert.Equal(t, outcomeStored, in.processMessage(context.Background(), []byte(raw)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMessageRejects(t *testing.T) {
	in, mock, pub := newTestIngester(t)

	for _, raw := range []string{
		`not json`,
		`{"latitude":1,"longitude":1}`,
		`{"report_id":"r1","latitude":95,"longitude":1}`,
		`{"report_id":"r1","longitude":1}`,
	} {
		assert.Equal(t, outcomeRejected, in.processMessage(context.Background(), []byte(raw)), raw)
	}
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.payloads)
}

func TestProcessMessageStoreFailure(t *testing.T) {
	in, mock, pub := newTestIngester(t)

	mock.ExpectExec("INSERT INTO reports").WillReturnError(errors.New("disk full"))

	assert.Equal(t, outcomeFailed, in.processMessage(context.Background(), []byte(validPayload)))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.payloads)
}

func TestProcessMessagePublishFailureStillStored(t *testing.T) {
	in, mock, pub := newTestIngester(t)
	pub.err = errors.New("redis down")

	mock.ExpectExec("INSERT INTO reports").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.Equal(t, outcomeStored, in.processMessage(context.Background(), []byte(validPayload)))
	require.NoError(t, mock.ExpectationsWereMet())
}
