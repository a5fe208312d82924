package feed

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogCSV = `ID,Name / Nom,Latitude,Longitude,Prov/Terr,Timezone / Fuseau horaire
08MF005,"FRASER RIVER AT HOPE",49.38608,-121.45414,BC,UTC-08:00
02KF005,"OTTAWA RIVER AT BRITANNIA",45.36416,-75.79249,ON,UTC-05:00
05PE006,"lake of the woods at keewatin",49.7668,-94.5583,ON,garbage
X00001,"BROKEN LONGITUDE",49.0,abc,BC,UTC-08:00
X00002,SHORT
02YL001,"UPPER HUMBER RIVER NEAR REIDVILLE",49.24,-57.36,NL,UTC-03:30
`

const readingsCSV = `ID,Date,Water Level / Niveau d'eau (m),Grade,Symbol / Symbole,QA/QC,Discharge / Débit (cms),Grade,Symbol / Symbole,QA/QC
08MF005,2024-05-01T00:00:00-08:00,4.512,,,1,1520,,,1
08MF005,2024-05-01T01:00:00-08:00,,,,1,1500,,,1
08MF005,not-a-time,4.498,,,1,NaN,,,1
08MF005,2024-05-01T02:00:00-08:00,4.5
`

func newTestParser() *Parser {
	return NewParser(slog.New(slog.DiscardHandler))
}

func TestParseCatalog(t *testing.T) {
	records, dropped := newTestParser().ParseCatalog(catalogCSV)

	require.Len(t, records, 4)
	assert.Equal(t, 2, dropped)

	hope := records[0]
	assert.Equal(t, "08MF005", hope.ID)
	assert.Equal(t, "Fraser River at Hope", hope.Name)
	assert.Equal(t, "BC", hope.Province)
	assert.InDelta(t, -8.0, hope.Timezone, 1e-9)
	assert.InDelta(t, -121.45414, hope.Lon, 1e-9)
	assert.InDelta(t, 49.38608, hope.Lat, 1e-9)

	assert.Equal(t, "Lake of the Woods at Keewatin", records[2].Name)
	assert.Zero(t, records[2].Timezone, "unparseable timezone falls back to 0")

	assert.Equal(t, "Upper Humber River near Reidville", records[3].Name)
	assert.InDelta(t, -3.5, records[3].Timezone, 1e-9)
}

func TestParseCatalogEmpty(t *testing.T) {
	p := newTestParser()

	records, dropped := p.ParseCatalog("")
	assert.Empty(t, records)
	assert.Zero(t, dropped)

	records, dropped = p.ParseCatalog("ID,Name,Latitude,Longitude,Prov,Timezone\n")
	assert.Empty(t, records)
	assert.Zero(t, dropped)
}

func TestParseReadings(t *testing.T) {
	records, dropped := newTestParser().ParseReadings(readingsCSV)

	require.Len(t, records, 3)
	assert.Equal(t, 1, dropped)

	first := records[0]
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), first.ReadTime)
	require.NotNil(t, first.Level)
	assert.InDelta(t, 4.512, *first.Level, 1e-9)
	require.NotNil(t, first.Discharge)
	assert.InDelta(t, 1520.0, *first.Discharge, 1e-9)

	second := records[1]
	assert.Nil(t, second.Level, "empty level is absent")
	require.NotNil(t, second.Discharge)
	assert.InDelta(t, 1500.0, *second.Discharge, 1e-9)

	third := records[2]
	assert.Equal(t, time.Unix(0, 0).UTC(), third.ReadTime, "bad timestamp falls back to the epoch")
	require.NotNil(t, third.Level)
	assert.InDelta(t, 4.498, *third.Level, 1e-9)
	assert.Nil(t, third.Discharge, "NaN is treated as absent")
}

func TestParseReadingsEmpty(t *testing.T) {
	records, dropped := newTestParser().ParseReadings("")
	assert.Empty(t, records)
	assert.Zero(t, dropped)
}

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "UTC-08:00", want: -8},
		{in: "UTC-03:30", want: -3.5},
		{in: "UTC+05:45", want: 5.75},
		{in: "UTC+01:00", want: 1},
		{in: "utc-5", want: -5},
		{in: `"UTC-07:00"`, want: -7},
		{in: "UTC", want: 0},
		{in: "EST", wantErr: true},
		{in: "UTC-xx:00", wantErr: true},
		{in: "UTC-08:yy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimezone(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Bow River at Banff", titleCase("BOW RIVER AT BANFF"))
	assert.Equal(t, "The Pas", titleCase("the pas"))
	assert.Equal(t, "Rivière Rouge", titleCase("Rivière ROUGE"))
	assert.Equal(t, "", titleCase(""))
}
