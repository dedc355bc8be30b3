// Package scan listens for beacon advertisements and decodes the
// measurement carried in major/minor. It is the receiving side used to
// check a deployed beacon from a BlueZ host.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"howsair-beacon/internal/beacon"
	"howsair-beacon/internal/types"
	"howsair-beacon/internal/utils"
)

// Sighting is one decoded advertisement.
type Sighting struct {
	Address       string
	RSSI          int16
	LocalName     string
	Payload       beacon.Payload
	Measurement   types.Measurement
	MeasuredPower int8
	SeenAt        time.Time
}

type Filter struct {
	// ManufacturerID of zero accepts any company.
	ManufacturerID uint16
	UUID           [16]byte
}

// Decoder turns raw manufacturer data into sightings, reporting each
// address only when its payload changes.
type Decoder struct {
	filter Filter
	mu     sync.Mutex
	last   map[string]beacon.Payload
}

func NewDecoder(f Filter) *Decoder {
	return &Decoder{filter: f, last: make(map[string]beacon.Payload)}
}

// Decode returns ok=false for foreign frames and for repeats of the
// previous payload from the same address.
func (d *Decoder) Decode(addr string, companyID uint16, data []byte) (beacon.Payload, bool, error) {
	if d.filter.ManufacturerID != 0 && companyID != d.filter.ManufacturerID {
		return beacon.Payload{}, false, nil
	}
	p, err := beacon.ParseManufacturerData(companyID, data)
	if err != nil {
		return beacon.Payload{}, false, err
	}
	if p.UUID != d.filter.UUID {
		return beacon.Payload{}, false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, seen := d.last[addr]; seen && prev == *p {
		return *p, false, nil
	}
	d.last[addr] = *p
	return *p, true, nil
}

type Options struct {
	// Adapter is the BlueZ adapter id, "hci0" by default.
	Adapter string
	Filter  Filter
	Logger  *slog.Logger
}

type Listener struct {
	adapter *bluetooth.Adapter
	name    string
	decoder *Decoder
	logger  *slog.Logger
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		name:    opts.Adapter,
		decoder: NewDecoder(opts.Filter),
		logger:  opts.Logger,
	}
}

// Run scans until ctx is done, calling onSighting for every new payload.
func (l *Listener) Run(ctx context.Context, onSighting func(Sighting)) error {
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("scan: enable %s: %w", l.name, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("scan: started",
		"adapter", l.name,
		"manufacturer_id", "0x"+utils.Hex4(l.decoder.filter.ManufacturerID),
		"uuid", utils.PrintableID(l.decoder.filter.UUID),
	)

	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr := r.Address.String()
		for _, md := range r.ManufacturerData() {
			p, ok, err := l.decoder.Decode(addr, md.CompanyID, md.Data)
			if err != nil {
				l.logger.Debug("scan: ignore frame", "addr", addr, "data", utils.BytesToHex(md.Data), "error", err)
				continue
			}
			if !ok {
				continue
			}
			if onSighting != nil {
				onSighting(Sighting{
					Address:       addr,
					RSSI:          r.RSSI,
					LocalName:     r.LocalName(),
					Payload:       p,
					Measurement:   Measurement(p),
					MeasuredPower: p.MeasuredPower,
					SeenAt:        time.Now(),
				})
			}
			return
		}
	})

	if ctx.Err() != nil {
		l.logger.Info("scan: stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

// Measurement reads ozone from major and temperature from minor.
func Measurement(p beacon.Payload) types.Measurement {
	return types.Measurement{OzonePPM: int(p.Major), TemperatureC: int(p.Minor)}
}
