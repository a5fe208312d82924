package models

import "time"

// Station is a monitoring station as persisted in the catalog.
type Station struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Province   string     `json:"prov"`
	Timezone   float64    `json:"timezone"`
	Lon        float64    `json:"lon"`
	Lat        float64    `json:"lat"`
	LastUpdate *time.Time `json:"lastupdate"`
}

// Reading is one point of a station's time series. A nil Level or Discharge
// means the feed carried no measurement for that hour.
type Reading struct {
	ReadTime  time.Time `json:"readtime"`
	Level     *float64  `json:"level"`
	Discharge *float64  `json:"discharge"`
}

// StationRecord is a parsed row of the upstream station catalog.
type StationRecord struct {
	ID       string
	Name     string
	Province string
	Timezone float64
	Lon      float64
	Lat      float64
}

// ReadingRecord is a parsed row of a per-station readings feed.
type ReadingRecord struct {
	ReadTime  time.Time
	Level     *float64
	Discharge *float64
}

// Bounds is an axis-aligned lon/lat rectangle.
type Bounds struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// World covers every valid position.
var World = Bounds{XMin: -180, YMin: -90, XMax: 180, YMax: 90}
