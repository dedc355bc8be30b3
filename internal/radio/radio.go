// Package radio puts beacon payloads on air with tinygo.org/x/bluetooth.
// The same code runs on BlueZ hosts and on TinyGo boards with an HCI
// controller (Pico W cyw43439, nRF SoftDevice).
package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"howsair-beacon/internal/beacon"
)

// Advertising policy: a fast window right after each restart so scanners
// pick up the new payload quickly, then a slower steady interval.
const (
	DefaultFastInterval   = 20 * time.Millisecond     // 32 units of 0.625ms
	DefaultSteadyInterval = 152500 * time.Microsecond // 244 units of 0.625ms
	DefaultFastWindow     = 30 * time.Second
)

var errNotEnabled = errors.New("radio: adapter not enabled")

type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

type Options struct {
	FastInterval   time.Duration
	SteadyInterval time.Duration
	// FastWindow defaults to DefaultFastWindow; negative disables it.
	FastWindow time.Duration
	Logger     *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Radio implements beacon.Advertiser. It is driven from the control loop
// only: Housekeep must be called every iteration to apply the interval
// policy and the start timeout.
type Radio struct {
	enable func() (advertisement, error)
	adv    advertisement
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	name    string
	txPower int8
	payload *beacon.Payload

	advertising bool
	steady      bool
	startedAt   time.Time
	timeout     time.Duration
}

var _ beacon.Advertiser = (*Radio)(nil)

// New uses the given adapter, bluetooth.DefaultAdapter when nil.
func New(adapter *bluetooth.Adapter, opts Options) *Radio {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	return newRadio(func() (advertisement, error) {
		if err := adapter.Enable(); err != nil {
			return nil, err
		}
		return adapter.DefaultAdvertisement(), nil
	}, opts)
}

func newRadio(enable func() (advertisement, error), opts Options) *Radio {
	if opts.FastInterval <= 0 {
		opts.FastInterval = DefaultFastInterval
	}
	if opts.SteadyInterval <= 0 {
		opts.SteadyInterval = DefaultSteadyInterval
	}
	if opts.FastWindow == 0 {
		opts.FastWindow = DefaultFastWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Radio{enable: enable, opts: opts, logger: logger, now: now}
}

func (r *Radio) Enable() error {
	if r.adv != nil {
		return nil
	}
	adv, err := r.enable()
	if err != nil {
		return fmt.Errorf("radio: enable adapter: %w", err)
	}
	r.adv = adv
	r.logger.Info("radio: adapter enabled")
	return nil
}

// Clear stops advertising and forgets the payload.
func (r *Radio) Clear() error {
	if r.adv == nil {
		return errNotEnabled
	}
	r.payload = nil
	if !r.advertising {
		return nil
	}
	r.advertising = false
	if err := r.adv.Stop(); err != nil {
		return fmt.Errorf("radio: stop: %w", err)
	}
	return nil
}

// SetFields records the local name and TX power level. The portable
// bluetooth API has no TX power control, so the level is informational.
func (r *Radio) SetFields(name string, txPower int8) error {
	r.name = name
	r.txPower = txPower
	return nil
}

func (r *Radio) SetBeacon(p beacon.Payload) error {
	r.payload = &p
	return nil
}

// Start advertises the current payload; a zero timeout means until replaced.
func (r *Radio) Start(timeout time.Duration) error {
	if r.adv == nil {
		return errNotEnabled
	}
	if r.payload == nil {
		return errors.New("radio: no beacon payload set")
	}
	if err := r.configure(r.opts.FastInterval); err != nil {
		return err
	}
	if err := r.adv.Start(); err != nil {
		_ = r.adv.Stop()
		return fmt.Errorf("radio: start: %w", err)
	}
	r.advertising = true
	r.steady = r.opts.FastWindow < 0
	r.startedAt = r.now()
	r.timeout = timeout
	return nil
}

// Housekeep drops to the steady interval after the fast window and stops
// advertising once the start timeout has passed.
func (r *Radio) Housekeep() error {
	if !r.advertising {
		return nil
	}
	elapsed := r.now().Sub(r.startedAt)

	if r.timeout > 0 && elapsed >= r.timeout {
		r.advertising = false
		r.logger.Info("radio: advertising timeout reached", "timeout", r.timeout)
		if err := r.adv.Stop(); err != nil {
			return fmt.Errorf("radio: stop: %w", err)
		}
		return nil
	}

	if !r.steady && elapsed >= r.opts.FastWindow {
		r.steady = true
		if err := r.adv.Stop(); err != nil {
			return fmt.Errorf("radio: stop: %w", err)
		}
		if err := r.configure(r.opts.SteadyInterval); err != nil {
			r.advertising = false
			return err
		}
		if err := r.adv.Start(); err != nil {
			r.advertising = false
			return fmt.Errorf("radio: restart: %w", err)
		}
		r.logger.Debug("radio: steady advertising interval", "interval", r.opts.SteadyInterval)
	}
	return nil
}

func (r *Radio) Advertising() bool { return r.advertising }

func (r *Radio) configure(interval time.Duration) error {
	opts := bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         r.name,
		Interval:          bluetooth.NewDuration(interval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: r.payload.ManufacturerID, Data: r.payload.ManufacturerData()},
		},
	}
	if err := r.adv.Configure(opts); err != nil {
		return fmt.Errorf("radio: configure: %w", err)
	}
	return nil
}
