package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"sms-gateway/internal/battery"
	"sms-gateway/internal/config"
	"sms-gateway/internal/dedup"
	"sms-gateway/internal/gpio"
	"sms-gateway/internal/health"
	"sms-gateway/internal/modem"
	"sms-gateway/internal/mqtt"
	"sms-gateway/internal/pipeline"
	redisClient "sms-gateway/internal/redis"
	"sms-gateway/internal/sms"
	"sms-gateway/internal/store"
	"sms-gateway/internal/watchdog"
	"sms-gateway/internal/wifi"
	"sms-gateway/internal/wpa"
)

// Host loop timing.
const (
	loopInterval       = 250 * time.Millisecond
	brokerRetryBackoff = 30 * time.Second
	signalLogInterval  = 90 * time.Second

	// Consecutive modem exchange failures before a power-key recovery.
	maxPollFailures = 3
)

type Service struct {
	Config   *config.Config
	Logger   *log.Logger
	Redis    *redisClient.Client
	Wifi     *wifi.Controller
	Session  *modem.Session
	Pipeline *pipeline.Pipeline
	Dedup    *dedup.Store
	Watchdog *watchdog.Watchdog
	Health   *health.Health
	Battery  *battery.Monitor

	mqttClient *mqtt.Client
	led        *gpio.LED
	power      *gpio.PowerController
	transport  modem.Transport
	kv         *store.Bolt
	version    string

	startTime       time.Time
	lastPoll        time.Time
	lastTelemetry   time.Time
	lastBrokerTry   time.Time
	lastSignalLog   time.Time
	pollFailures    int
	forwardFailures int
}

// New wires the gateway together. An unavailable persistent store is fatal:
// without it duplicate suppression cannot be guaranteed, so ingestion must
// not start.
func New(cfg *config.Config, logger *log.Logger, version string) (*Service, error) {
	kv, err := store.Open(cfg.Dedup.Path)
	if err != nil {
		return nil, fmt.Errorf("persistent store unavailable: %v", err)
	}

	dedupStore, err := dedup.Open(kv.Namespace(dedup.Namespace), cfg.Dedup.Capacity, logger)
	if err != nil {
		kv.Close()
		return nil, err
	}

	wdt, err := watchdog.New(kv.Namespace(watchdog.Namespace), logger)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to initialize watchdog state: %v", err)
	}

	redis, err := redisClient.New(cfg.Redis.URL, logger)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to create Redis client: %v", err)
	}

	supplicant, err := wpa.New(cfg.Wifi.Interface, cfg.Wifi.SSID, cfg.Wifi.Password, debugLogger(cfg, logger))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to attach to wpa_supplicant: %v", err)
	}

	backoff := wifi.Backoff{
		Initial:    cfg.Wifi.InitialDelay,
		Multiplier: cfg.Wifi.Multiplier,
		Max:        cfg.Wifi.MaxBackoff,
		JitterMax:  cfg.Wifi.JitterMax,
	}
	controller := wifi.NewController(supplicant, backoff, cfg.Wifi.ProbeTimeout, logger)

	s := &Service{
		Config:    cfg,
		Logger:    logger,
		Redis:     redis,
		Wifi:      controller,
		Dedup:     dedupStore,
		Watchdog:  wdt,
		Health:    health.New(),
		Battery:   battery.NewMonitor(cfg.Battery.VoltagePath, cfg.Battery.ScaleMV, cfg.Battery.DividerR1, cfg.Battery.DividerR2, cfg.Battery.LowMV),
		kv:        kv,
		version:   version,
		startTime: time.Now(),
	}

	if err := s.setupModem(); err != nil {
		kv.Close()
		return nil, err
	}

	s.Pipeline = pipeline.New(s.Session, dedupStore, s.deliverSMS, logger)

	// Status LED is best-effort; headless setups run without one.
	if led, err := gpio.NewLED(cfg.LED.Chip, cfg.LED.Line); err != nil {
		logger.Printf("Status LED unavailable: %v", err)
	} else {
		s.led = led
	}

	logger.Printf("sms-gateway v%s", version)
	return s, nil
}

// Run drives the host loop until the context is cancelled. Every iteration
// ticks the connectivity controller and feeds the watchdog; ingestion and
// telemetry run on their own intervals once the link is up.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Redis.Ping(ctx); err != nil {
		// State publication is observability only; run without it.
		s.Logger.Printf("Redis unavailable, state publication disabled: %v", err)
		s.Redis = nil
	}

	s.Wifi.Observe(s.onWifiState)

	if err := s.Wifi.InitialConnect(s.Config.Wifi.MaxInitialAttempts); err != nil {
		// Non-fatal: Tick keeps retrying with backoff.
		s.Logger.Printf("Initial connection failed, continuing degraded: %v", err)
	}

	s.connectBroker(time.Now())

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			s.iterate(time.Now())
		}
	}
}

// iterate is one pass of the host loop.
func (s *Service) iterate(now time.Time) {
	s.Wifi.Tick(now)
	s.Watchdog.Feed(now)

	if s.Wifi.State() != wifi.StateConnected {
		return
	}

	if s.mqttClient == nil {
		s.connectBroker(now)
	}

	if now.Sub(s.lastPoll) >= s.Config.Modem.PollInterval {
		s.lastPoll = now
		s.pollOnce(now)
	}

	if now.Sub(s.lastTelemetry) >= s.Config.Telemetry.Interval {
		s.lastTelemetry = now
		s.publishTelemetry(now)
	}

	if now.Sub(s.lastSignalLog) >= signalLogInterval {
		s.lastSignalLog = now
		rssi := s.Wifi.SignalStrength()
		s.Logger.Printf("wifi signal: %d dBm", rssi)
		s.publishWifiField("signal-strength", strconv.Itoa(rssi))
	}
}

// pollOnce runs one ingestion poll and escalates repeated modem failures to
// a power-key recovery.
func (s *Service) pollOnce(now time.Time) {
	if s.Health.IsTerminal() {
		return
	}

	err := s.Pipeline.Poll()
	if err == nil {
		s.pollFailures = 0
		if s.Health.IsRecovering() {
			s.Health.MarkNormal()
			s.Logger.Printf("SIM module recovered")
		}
		s.publishGatewayField("dedup-count", strconv.Itoa(s.Dedup.OccupiedCount()))
		return
	}

	s.Logger.Printf("Poll failed: %v", err)

	// Delivery and persistence failures mean the modem answered fine: the
	// message stays on the SIM and the next poll retries. The power-key
	// ladder is for the modem alone.
	if !pipeline.IsModemFailure(err) {
		s.pollFailures = 0
		return
	}

	s.pollFailures++
	if s.pollFailures >= maxPollFailures {
		s.handleModemFailure(now)
	}
}

func (s *Service) handleModemFailure(now time.Time) {
	if s.Health.CooldownOver(now) {
		s.Health.RecoveryAttempts = 0
	}
	if !s.Health.CanRecover() {
		s.Logger.Printf("SEVERE ERROR: SIM module failed %d recovery attempts, giving up",
			health.MaxRecoveryAttempts)
		s.Health.MarkFailed()
		if s.led != nil {
			s.led.SetMode(gpio.LEDFast)
		}
		return
	}

	s.Health.StartRecovery()
	s.Logger.Printf("Attempting SIM module recovery (attempt %d/%d)",
		s.Health.RecoveryAttempts, health.MaxRecoveryAttempts)

	if s.power != nil {
		if err := s.power.PowerOn(); err != nil {
			s.Logger.Printf("Power key pulse failed: %v", err)
		}
	}

	if err := s.Session.Ping(); err != nil {
		s.Logger.Printf("SIM module still unresponsive: %v", err)
		return
	}

	s.Health.MarkNormal()
	s.pollFailures = 0
	s.Logger.Printf("SIM module recovery successful")
}

// deliverSMS hands one message to the broker. Failure keeps the message on
// the SIM; the pipeline retries on the next poll.
func (s *Service) deliverSMS(msg sms.Message) error {
	if s.mqttClient == nil {
		return fmt.Errorf("broker not connected")
	}
	if err := s.mqttClient.PublishSMS(msg); err != nil {
		s.forwardFailures++
		return err
	}
	return nil
}

// connectBroker attempts the MQTT session, rate-limited so a dead broker
// does not stall the loop every iteration.
func (s *Service) connectBroker(now time.Time) {
	if s.mqttClient != nil || now.Sub(s.lastBrokerTry) < brokerRetryBackoff {
		return
	}
	s.lastBrokerTry = now

	client, err := mqtt.Connect(s.Config.MQTT, s.Logger)
	if err != nil {
		s.Logger.Printf("Broker connection failed, will retry: %v", err)
		return
	}
	s.mqttClient = client
}

// onWifiState is the single connectivity observer: logs, republishes state
// and drives the LED. Invoked synchronously from the controller.
func (s *Service) onWifiState(state wifi.State, attempts int) {
	s.Logger.Printf("wifi state: %s (attempts: %d)", state, attempts)

	s.publishWifiField("status", string(state))
	s.publishWifiField("reconnect-attempts", strconv.Itoa(s.Wifi.TotalReconnectAttempts()))

	if s.led == nil {
		return
	}
	if state == wifi.StateConnected {
		s.led.SetMode(gpio.LEDSlow)
	} else {
		s.led.SetMode(gpio.LEDFast)
	}
}

// telemetrySnapshot is the JSON document published to the telemetry topic.
type telemetrySnapshot struct {
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_s"`
	WifiState       string `json:"wifi_state"`
	RSSIDBm         int    `json:"rssi_dbm"`
	BackoffMS       int64  `json:"backoff_ms"`
	TotalReconnects int    `json:"total_reconnects"`
	Forwarded       int    `json:"forwarded"`
	Duplicates      int    `json:"duplicates_skipped"`
	DedupOccupied   int    `json:"dedup_occupied"`
	BatteryMV       int    `json:"battery_mv"`
	BatteryLow      bool   `json:"battery_low"`
	WatchdogResets  int    `json:"watchdog_resets"`
	ModemHealth     string `json:"modem_health"`
}

func (s *Service) publishTelemetry(now time.Time) {
	if s.mqttClient == nil {
		return
	}

	snap := telemetrySnapshot{
		Version:         s.version,
		UptimeSeconds:   int64(now.Sub(s.startTime).Seconds()),
		WifiState:       string(s.Wifi.State()),
		RSSIDBm:         s.Wifi.SignalStrength(),
		BackoffMS:       s.Wifi.CurrentBackoff().Milliseconds(),
		TotalReconnects: s.Wifi.TotalReconnectAttempts(),
		Forwarded:       s.Pipeline.Forwarded(),
		Duplicates:      s.Pipeline.Skipped(),
		DedupOccupied:   s.Dedup.OccupiedCount(),
		WatchdogResets:  s.Watchdog.ResetCount(),
		ModemHealth:     s.Health.State,
	}

	if mv, err := s.Battery.Millivolts(); err == nil {
		snap.BatteryMV = mv
		snap.BatteryLow = mv < s.Config.Battery.LowMV
	}

	if err := s.mqttClient.PublishTelemetry(snap); err != nil {
		s.Logger.Printf("Failed to publish telemetry: %v", err)
	}
}

// setupModem opens the serial transport and makes sure the module answers,
// pulsing the power key once if it does not.
func (s *Service) setupModem() error {
	transport, err := modem.OpenSerial(s.Config.Modem.Device, s.Config.Modem.BaudRate, debugLogger(s.Config, s.Logger))
	if err != nil {
		return fmt.Errorf("failed to open modem serial port: %v", err)
	}
	s.transport = transport
	s.Session = modem.NewSession(transport, s.Config.Modem.CommandTimeout, s.Config.Modem.ListTimeout, debugLogger(s.Config, s.Logger))

	if power, err := gpio.NewPowerController(s.Config.Modem.PowerChip, s.Config.Modem.PowerLine, s.Logger.Printf); err != nil {
		s.Logger.Printf("Modem power control unavailable: %v", err)
	} else {
		s.power = power
	}

	if err := s.Session.Ping(); err != nil {
		s.Logger.Printf("SIM module not responding, pulsing power key: %v", err)
		if s.power != nil {
			if err := s.power.PowerOn(); err != nil {
				s.Logger.Printf("Power key pulse failed: %v", err)
			}
		}
		if err := s.Session.Ping(); err != nil {
			// Not fatal: the poll loop keeps trying and escalates through
			// the health state machine.
			s.Logger.Printf("SIM module still not responding: %v", err)
		}
	}

	return nil
}

func (s *Service) shutdown() error {
	s.Logger.Printf("Shutting down...")

	if err := s.Watchdog.Stop(); err != nil {
		s.Logger.Printf("Failed to record clean shutdown: %v", err)
	}
	if s.mqttClient != nil {
		s.mqttClient.Close()
	}
	if s.led != nil {
		s.led.Close()
	}
	if s.power != nil {
		s.power.Close()
	}
	if s.transport != nil {
		s.transport.Close()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	return s.kv.Close()
}

func (s *Service) publishWifiField(field, value string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.PublishWifiState(context.Background(), field, value); err != nil {
		s.Logger.Printf("Failed to publish wifi %s: %v", field, err)
	}
}

func (s *Service) publishGatewayField(field, value string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.PublishGatewayState(context.Background(), field, value); err != nil {
		s.Logger.Printf("Failed to publish gateway %s: %v", field, err)
	}
}

func debugLogger(cfg *config.Config, logger *log.Logger) func(string, ...interface{}) {
	if cfg.Debug {
		return logger.Printf
	}
	return func(string, ...interface{}) {}
}
