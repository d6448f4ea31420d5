package robot

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Default controller addresses.
const (
	DefaultHost          = "192.168.5.11"
	DefaultDashboardPort = 29999
	DefaultMovePort      = 30003
	DefaultFeedbackPort  = 30004
)

// Config holds connection and motion settings for a Dobot controller.
type Config struct {
	Host          string `json:"host"`
	DashboardPort int    `json:"dashboard_port"`
	MovePort      int    `json:"move_port"`
	FeedbackPort  int    `json:"feedback_port"`
	Feedback      bool   `json:"feedback"` // also hold the realtime feedback connection open
	SpeedFactor   int    `json:"speed_factor"`
	AccJ          int    `json:"acc_j"`
	Tool          *int   `json:"tool,omitempty"` // nil keeps the controller's active tool

	DialTimeout  time.Duration `json:"-"`
	ReplyTimeout time.Duration `json:"-"`
	Enable       EnableTiming  `json:"-"`
}

// EnableTiming controls the enable handshake and the settle delays that
// follow each setting. The controller does not acknowledge settings, so the
// delays are the only synchronization available.
type EnableTiming struct {
	Delay      time.Duration // after the first EnableRobot
	Poll       time.Duration // between RobotMode reads
	Timeout    time.Duration // total polling budget
	RetryPause time.Duration // between Continue and EnableRobot when recovering from error
	Settle     time.Duration // after SpeedFactor and AccJ
	ToolSettle time.Duration // after Tool
}

// DefaultEnableTiming returns the handshake timing used on real hardware.
func DefaultEnableTiming() EnableTiming {
	return EnableTiming{
		Delay:      2 * time.Second,
		Poll:       500 * time.Millisecond,
		Timeout:    20 * time.Second,
		RetryPause: 500 * time.Millisecond,
		Settle:     500 * time.Millisecond,
		ToolSettle: 100 * time.Millisecond,
	}
}

// DefaultConfig returns the settings for a factory-configured controller.
func DefaultConfig() Config {
	tool := 1
	return Config{
		Host:          DefaultHost,
		DashboardPort: DefaultDashboardPort,
		MovePort:      DefaultMovePort,
		FeedbackPort:  DefaultFeedbackPort,
		SpeedFactor:   100,
		AccJ:          20,
		Tool:          &tool,
		DialTimeout:   5 * time.Second,
		ReplyTimeout:  DefaultReplyTimeout,
		Enable:        DefaultEnableTiming(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("robot host is required")
	}
	if c.DashboardPort <= 0 || c.MovePort <= 0 {
		return errors.New("robot dashboard and move ports are required")
	}
	if c.Feedback && c.FeedbackPort <= 0 {
		return errors.New("robot feedback port is required when feedback is enabled")
	}
	if c.SpeedFactor < 1 || c.SpeedFactor > 100 {
		return errors.New("robot speed factor must be between 1 and 100")
	}
	if c.AccJ < 1 || c.AccJ > 100 {
		return errors.New("robot joint acceleration must be between 1 and 100")
	}
	return nil
}

// withDefaults fills zero durations, which is what a config loaded from
// JSON carries.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.Enable == (EnableTiming{}) {
		c.Enable = def.Enable
	}
	return c
}

// Addr joins the host with port.
func (c Config) Addr(port int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
