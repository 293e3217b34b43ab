// media/types.go
package media

import "time"

// Metadata holds raster properties and the optional EXIF enrichment of an upload.
type Metadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"` // decoder name: jpeg, png, webp, ...

	CapturedAt   time.Time `json:"captured_at"`
	CapturedExif bool      `json:"captured_exif"` // false when CapturedAt fell back to now

	GPS        *GPSPoint         `json:"gps,omitempty"`
	Heading    *float64          `json:"heading,omitempty"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`

	// Warnings lists optional fields that could not be decoded.
	Warnings []string `json:"warnings,omitempty"`
}

// GPSPoint is a decoded coordinate. Latitude and longitude always come together.
type GPSPoint struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}
