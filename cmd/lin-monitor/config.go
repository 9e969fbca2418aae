package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/indicator"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/logging"
)

const envPrefix = "LIN_MONITOR_"

type appConfig struct {
	backend      string
	serialDev    string
	baud         int
	serialReadTO time.Duration
	sllinIf      string
	checksum     string
	mailbox      int
	rulesFile    string
	pace         time.Duration

	ledErr     string
	ledFrames  string
	ledStatus  string
	buzzerPin  string
	buzzerHold time.Duration
	buzzerOn   time.Duration
	buzzerOff  time.Duration

	console     string
	consoleBaud int

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	exportListen string
	hubBuffer    int
	hubPolicy    string
	maxClients   int
	handshakeTO  time.Duration
	clientReadTO time.Duration
	mdnsEnable   bool
	mdnsName     string

	stateDB      string
	mqttBroker   string
	mqttTopic    string
	mqttClientID string
	mqttUser     string
	mqttPass     string
}

// parseFlags registers the command line on fs, parses args and applies
// LIN_MONITOR_* environment overrides for every flag not given explicitly.
func parseFlags(fs *flag.FlagSet, args []string) (*appConfig, bool, error) {
	cfg := &appConfig{}
	fs.StringVar(&cfg.backend, "backend", "serial", "LIN receive backend: serial|tty|sllin")
	fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyS0", "UART device wired to the LIN transceiver")
	fs.IntVar(&cfg.baud, "baud", 19200, "LIN bit rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 10*time.Millisecond, "Read timeout; a silent gap this long ends a frame")
	fs.StringVar(&cfg.sllinIf, "sllin-if", "sllin0", "sllin network interface (when --backend=sllin)")
	fs.StringVar(&cfg.checksum, "checksum", "classic", "Checksum model: classic|enhanced")
	fs.IntVar(&cfg.mailbox, "mailbox", lin.DefaultMailboxDepth, "Decoded frames buffered between receiver and loop")
	fs.StringVar(&cfg.rulesFile, "rules", "", "YAML signal rules file (empty = built-in reverse gear rule)")
	fs.DurationVar(&cfg.pace, "pace", 0, "Delay between loop iterations (0 = free running)")
	fs.StringVar(&cfg.ledErr, "led-err", "none", "Error LED output: none|log|sysfs:<path>")
	fs.StringVar(&cfg.ledFrames, "led-frames", "none", "Frame LED output: none|log|sysfs:<path>")
	fs.StringVar(&cfg.ledStatus, "led-status", "none", "Status LED output: none|log|sysfs:<path>")
	fs.StringVar(&cfg.buzzerPin, "buzzer", "log", "Buzzer output: none|log|sysfs:<path>")
	fs.DurationVar(&cfg.buzzerHold, "buzzer-hold", indicator.DefaultHold, "Release the buzzer if its signal is not repeated within this time (0 = never)")
	fs.DurationVar(&cfg.buzzerOn, "buzzer-on", indicator.DefaultBeepOn, "Beep on time")
	fs.DurationVar(&cfg.buzzerOff, "buzzer-off", indicator.DefaultBeepOff, "Beep off time (0 = continuous tone)")
	fs.StringVar(&cfg.console, "console", "", "Serial device mirroring the diagnostic output (empty = stdout only)")
	fs.IntVar(&cfg.consoleBaud, "console-baud", 115200, "Console mirror baud rate")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	fs.StringVar(&cfg.exportListen, "export-listen", "", "Cannelloni TCP export address (e.g., :20000); empty disables")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "Per-client export buffer (frames)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Export backpressure policy: drop|kick")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous export clients (0 = unlimited)")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", 3*time.Second, "Export client handshake timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "Export per-connection read deadline")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the export listener via mDNS")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default lin-monitor-<hostname>)")
	fs.StringVar(&cfg.stateDB, "state-db", "", "bbolt file persisting signal states; empty disables")
	fs.StringVar(&cfg.mqttBroker, "mqtt-broker", "", "MQTT broker URL for signal events (e.g., tcp://localhost:1883); empty disables")
	fs.StringVar(&cfg.mqttTopic, "mqtt-topic", "vehicle/lin/signals", "MQTT topic for signal events")
	fs.StringVar(&cfg.mqttClientID, "mqtt-client-id", "lin-monitor", "MQTT client id")
	fs.StringVar(&cfg.mqttUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&cfg.mqttPass, "mqtt-password", "", "MQTT password")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, *showVersion, fmt.Errorf("environment override: %w", err)
	}
	if *showVersion {
		return cfg, true, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// validate performs semantic validation of the parsed configuration.
// It does not open devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "tty", "sllin":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if _, err := lin.ParseChecksumMode(c.checksum); err != nil {
		return err
	}
	if _, ok := hub.ParsePolicy(c.hubPolicy); !ok {
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	for name, spec := range map[string]string{
		"led-err": c.ledErr, "led-frames": c.ledFrames, "led-status": c.ledStatus, "buzzer": c.buzzerPin,
	} {
		if _, err := indicator.ParsePin(spec, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.consoleBaud <= 0 {
		return fmt.Errorf("console-baud must be > 0 (got %d)", c.consoleBaud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.mailbox <= 0 {
		return fmt.Errorf("mailbox must be > 0 (got %d)", c.mailbox)
	}
	if c.pace < 0 {
		return fmt.Errorf("pace must be >= 0")
	}
	if c.buzzerOn <= 0 {
		return fmt.Errorf("buzzer-on must be > 0")
	}
	if c.buzzerOff < 0 || c.buzzerHold < 0 {
		return fmt.Errorf("buzzer-off and buzzer-hold must be >= 0")
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.mdnsEnable && c.exportListen == "" {
		return fmt.Errorf("mdns-enable requires export-listen")
	}
	if c.mqttBroker != "" && c.mqttTopic == "" {
		return fmt.Errorf("mqtt-topic must not be empty")
	}
	return nil
}

// applyEnvOverrides maps LIN_MONITOR_<FLAG> environment variables (flag name
// upper-cased, dashes as underscores) onto config fields unless the flag was
// set explicitly. Empty values are ignored, except for metrics-addr where an
// empty value disables the endpoint. The first parse error is returned.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(name string) (string, string, bool) {
		if _, ok := set[name]; ok {
			return "", "", false
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		v, ok := os.LookupEnv(key)
		return key, strings.TrimSpace(v), ok
	}
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	str := func(name string, dst *string) {
		if _, v, ok := get(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, min int, dst *int) {
		key, v, ok := get(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err == nil && n < min {
			err = fmt.Errorf("must be >= %d", min)
		}
		if err != nil {
			fail(key, err)
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		key, v, ok := get(name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err == nil && d < 0 {
			err = errors.New("must be >= 0")
		}
		if err != nil {
			fail(key, err)
			return
		}
		*dst = d
	}
	boolean := func(name string, dst *bool) {
		key, v, ok := get(name)
		if !ok || v == "" {
			return
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			fail(key, fmt.Errorf("not a boolean: %q", v))
		}
	}

	str("backend", &c.backend)
	str("serial", &c.serialDev)
	num("baud", 1, &c.baud)
	dur("serial-read-timeout", &c.serialReadTO)
	str("sllin-if", &c.sllinIf)
	str("checksum", &c.checksum)
	num("mailbox", 1, &c.mailbox)
	str("rules", &c.rulesFile)
	dur("pace", &c.pace)
	str("led-err", &c.ledErr)
	str("led-frames", &c.ledFrames)
	str("led-status", &c.ledStatus)
	str("buzzer", &c.buzzerPin)
	dur("buzzer-hold", &c.buzzerHold)
	dur("buzzer-on", &c.buzzerOn)
	dur("buzzer-off", &c.buzzerOff)
	str("console", &c.console)
	num("console-baud", 1, &c.consoleBaud)
	str("log-format", &c.logFormat)
	str("log-level", &c.logLevel)
	if _, v, ok := get("metrics-addr"); ok {
		c.metricsAddr = v
	}
	dur("log-metrics-interval", &c.logMetricsEvery)
	str("export-listen", &c.exportListen)
	num("hub-buffer", 1, &c.hubBuffer)
	str("hub-policy", &c.hubPolicy)
	num("max-clients", 0, &c.maxClients)
	dur("handshake-timeout", &c.handshakeTO)
	dur("client-read-timeout", &c.clientReadTO)
	boolean("mdns-enable", &c.mdnsEnable)
	str("mdns-name", &c.mdnsName)
	str("state-db", &c.stateDB)
	str("mqtt-broker", &c.mqttBroker)
	str("mqtt-topic", &c.mqttTopic)
	str("mqtt-client-id", &c.mqttClientID)
	str("mqtt-user", &c.mqttUser)
	str("mqtt-password", &c.mqttPass)
	return firstErr
}
