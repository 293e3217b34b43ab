package realtime

import (
	"time"

	"github.com/camden-git/fleetinspectbackend/models"
)

// HubNotifier publishes pipeline events to websocket clients.
type HubNotifier struct {
	hub *Hub
	now func() time.Time
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub, now: time.Now}
}

func (n *HubNotifier) PhotoStatusChanged(photo *models.InspectionPhoto) {
	ev := Event{
		Type:      EventPhotoStatus,
		PhotoID:   photo.ID.String(),
		AssetID:   photo.AssetID,
		Status:    string(photo.Status),
		Timestamp: n.now().Unix(),
	}
	if photo.ErrorMessage != nil {
		ev.Error = *photo.ErrorMessage
	}
	n.hub.Broadcast(ev)
}

func (n *HubNotifier) CriticalAnomaly(photo *models.InspectionPhoto, anomaly *models.VisualAnomaly) error {
	n.hub.Broadcast(Event{
		Type:    EventAnomalyCritical,
		PhotoID: photo.ID.String(),
		AssetID: photo.AssetID,
		Extra: map[string]interface{}{
			"anomaly_id":   anomaly.ID.String(),
			"anomaly_type": anomaly.AnomalyType,
			"severity":     anomaly.Severity,
			"confidence":   anomaly.Confidence,
			"label":        anomaly.Label,
		},
		Timestamp: n.now().Unix(),
	})
	return nil
}
