package notify

import (
	"context"
	"log/slog"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/models"
)

// FailureObserver is told about every failed channel delivery.
type FailureObserver func(channel string)

// Dispatcher fans out events to all configured channels.
type Dispatcher struct {
	channels []Channel
	minSev   models.SeverityLevel // minimum severity to notify on (empty = all)
	events   map[string]bool      // event types to send
	onFail   FailureObserver
}

// defaultEvents is the set of event types that trigger notifications when cfg.Events is empty.
var defaultEvents = map[string]bool{
	EventCriticalFinding: true,
	EventScanFailed:      true,
	EventScanCompleted:   true,
}

// NewDispatcher creates a Dispatcher from the given config.
// Only channels with IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	return NewDispatcherWith(cfg, NewSlack(cfg.Slack), NewWebhook(cfg.Webhook), NewNATS(cfg.NATS))
}

// NewDispatcherWith applies cfg's filters to an explicit channel list.
func NewDispatcherWith(cfg config.NotifyConfig, channels ...Channel) *Dispatcher {
	d := &Dispatcher{}
	if sev, ok := models.ParseSeverity(cfg.MinSeverity); ok {
		d.minSev = sev
	} else if cfg.MinSeverity != "" {
		slog.Warn("Ignoring unknown notify.min_severity", "value", cfg.MinSeverity)
	}
	if len(cfg.Events) > 0 {
		d.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			d.events[e] = true
		}
	} else {
		d.events = defaultEvents
	}
	for _, ch := range channels {
		if ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// OnFailure registers fn to observe failed deliveries.
func (d *Dispatcher) OnFailure(fn FailureObserver) {
	d.onFail = fn
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Channels returns the names of the active channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Notify sends evt to all configured channels. Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) {
	if !d.shouldSend(evt) {
		return
	}
	for _, ch := range d.channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("Notification send failed", "channel", ch.Name(), "event", evt.Type, "scan_id", evt.ScanID, "error", err)
			if d.onFail != nil {
				d.onFail(ch.Name())
			}
		}
	}
}

// Close releases channels holding connections.
func (d *Dispatcher) Close() {
	for _, ch := range d.channels {
		if c, ok := ch.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func (d *Dispatcher) shouldSend(evt Event) bool {
	if !d.events[evt.Type] {
		return false
	}
	// Severity filter only applies to finding events.
	if d.minSev != "" && evt.Severity != "" {
		return models.SeverityLevel(evt.Severity).AtLeast(d.minSev)
	}
	return true
}
