package aggregate

import (
	"fmt"
	"math"

	"attentionguard/internal/records"
	"attentionguard/internal/sources"
)

const (
	tooltipPrefix     = "AttentionGuard"
	tooltipNoSource   = tooltipPrefix + " - No supported platform"
	tooltipSourceTmpl = tooltipPrefix + " - %s (Click to open panel)"
)

// Indicator is the live badge of one surface.
type Indicator struct {
	SurfaceID    string `json:"surfaceId"`
	Source       string `json:"source,omitempty"`
	PercentLabel string `json:"percentLabel"`
	Color        string `json:"color,omitempty"`
	Tooltip      string `json:"tooltip"`
}

// Active reports whether the surface shows a supported source.
func (i Indicator) Active() bool {
	return i.Source != ""
}

// clearedIndicator is shown when a surface has no detected source.
func clearedIndicator(surfaceID string) Indicator {
	return Indicator{SurfaceID: surfaceID, Tooltip: tooltipNoSource}
}

// deriveIndicator renders rec for a surface showing src. The label stays
// empty until the source has observed at least one item.
func deriveIndicator(surfaceID string, src sources.Source, rec records.Record, held bool) Indicator {
	ind := Indicator{
		SurfaceID: surfaceID,
		Source:    src.ID,
		Tooltip:   fmt.Sprintf(tooltipSourceTmpl, src.Name),
	}
	if held && rec.Total > 0 {
		ind.PercentLabel = PercentLabel(rec.Manipulated(), rec.Total)
		ind.Color = src.Color
	}
	return ind
}

// PercentLabel renders the manipulated share as a whole percent, "67%".
func PercentLabel(manipulated, total int) string {
	if total <= 0 {
		return ""
	}
	pct := math.Round(float64(manipulated) / float64(total) * 100)
	return fmt.Sprintf("%d%%", int(pct))
}
