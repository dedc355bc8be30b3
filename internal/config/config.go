package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	TelemetryInterval time.Duration
	LoopInterval      time.Duration
	SampleTimeout     time.Duration

	// DeviceFile is the optional YAML overlay for Device.
	DeviceFile string
	Device     Device

	JournalPath string
	HTTPAddr    string

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	BeaconID     string

	I2CBus     string
	ADCAddress uint16
	BuzzerPin  string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	telemetryInterval, err := positiveDuration("TELEMETRY_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	loopInterval, err := positiveDuration("LOOP_INTERVAL", "10ms")
	if err != nil {
		return Config{}, err
	}
	if loopInterval > telemetryInterval {
		return Config{}, fmt.Errorf("LOOP_INTERVAL %v must not exceed TELEMETRY_INTERVAL %v", loopInterval, telemetryInterval)
	}
	sampleTimeout, err := positiveDuration("SAMPLE_TIMEOUT", "250ms")
	if err != nil {
		return Config{}, err
	}

	deviceFile := strings.TrimSpace(os.Getenv("BEACON_CONFIG"))
	device := DefaultDevice()
	if deviceFile != "" {
		device, err = LoadDevice(deviceFile)
		if err != nil {
			return Config{}, err
		}
	}
	if err := device.Validate(); err != nil {
		return Config{}, err
	}

	mqttEnabledStr := strings.TrimSpace(os.Getenv("MQTT_ENABLED"))
	if mqttEnabledStr == "" {
		mqttEnabledStr = "false"
	}
	mqttEnabled, err := strconv.ParseBool(mqttEnabledStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_ENABLED %q: %w", mqttEnabledStr, err)
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "howsair-beacon"
	}

	beaconID := strings.TrimSpace(os.Getenv("BEACON_ID"))
	if beaconID == "" {
		beaconID = device.Beacon.Name
	}

	adcAddressStr := strings.TrimSpace(os.Getenv("HW_ADC_ADDRESS"))
	if adcAddressStr == "" {
		adcAddressStr = "0x48"
	}
	adcAddress, err := strconv.ParseUint(adcAddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid HW_ADC_ADDRESS %q: %w", adcAddressStr, err)
	}

	return Config{
		AppEnv:            appEnv,
		LogLevel:          level,
		TelemetryInterval: telemetryInterval,
		LoopInterval:      loopInterval,
		SampleTimeout:     sampleTimeout,
		DeviceFile:        deviceFile,
		Device:            device,
		JournalPath:       strings.TrimSpace(os.Getenv("JOURNAL_PATH")),
		HTTPAddr:          strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		MQTTEnabled:       mqttEnabled,
		MQTTBroker:        mqttBroker,
		MQTTPort:          mqttPort,
		MQTTClientID:      mqttClientID,
		BeaconID:          beaconID,
		I2CBus:            strings.TrimSpace(os.Getenv("HW_I2C_BUS")),
		ADCAddress:        uint16(adcAddress),
		BuzzerPin:         strings.TrimSpace(os.Getenv("HW_BUZZER_PIN")),
	}, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
