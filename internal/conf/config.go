// Package conf loads and validates the application configuration.
// Configuration is read with viper from a YAML file, with environment
// variable overrides (ZDEX_ prefix) and sane defaults for every value.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zdex/zdex-go/internal/errors"
)

// Settings is the root configuration object, constructed once at startup and
// passed explicitly to the components that need it.
type Settings struct {
	Main       MainSettings       `mapstructure:"main"`
	Camera     CameraSettings     `mapstructure:"camera"`
	Detection  DetectionSettings  `mapstructure:"detection"`
	Tracking   TrackingSettings   `mapstructure:"tracking"`
	Capture    CaptureSettings    `mapstructure:"capture"`
	Metrics    MetricsSettings    `mapstructure:"metrics"`
	MQTT       MQTTSettings       `mapstructure:"mqtt"`
	Enrichment EnrichmentSettings `mapstructure:"enrichment"`
}

// MainSettings holds application-wide options.
type MainSettings struct {
	Name     string `mapstructure:"name"`     // instance name used in logs and MQTT client id
	DataDir  string `mapstructure:"datadir"`  // base directory for databases, images and logs
	LogLevel string `mapstructure:"loglevel"` // debug, info, warn, error
}

// CameraSettings configures the frame source.
type CameraSettings struct {
	DeviceID       int `mapstructure:"deviceid"`
	Width          int `mapstructure:"width"`
	Height         int `mapstructure:"height"`
	FPS            int `mapstructure:"fps"`
	FrameQueueSize int `mapstructure:"framequeuesize"` // bounded drop-oldest frame queue
}

// DetectionSettings configures the inference pipeline.
type DetectionSettings struct {
	Interval        time.Duration `mapstructure:"interval"`        // minimum gap between inference invocations
	QueueTimeout    time.Duration `mapstructure:"queuetimeout"`    // frame queue wait before the loop re-checks its stop flag
	Threshold       float64       `mapstructure:"threshold"`       // detector confidence floor
	TopK            int           `mapstructure:"topk"`            // highest-scored results kept per batch; 0 keeps all
	ResultQueueSize int           `mapstructure:"resultqueuesize"` // bounded drop-oldest result queue
	LabelPath       string        `mapstructure:"labelpath"`       // classifier label manifest
	DetectorModel   string        `mapstructure:"detectormodel"`   // ONNX detector weights
	ClassifierModel string        `mapstructure:"classifiermodel"` // ONNX classifier weights
	InputSize       int           `mapstructure:"inputsize"`       // square input resolution for both networks
}

// TrackingSettings configures the freeze / auto-capture state machine.
type TrackingSettings struct {
	FreezeConfidence float64       `mapstructure:"freezeconfidence"` // classification score required to track toward a freeze
	RequiredStreak   int           `mapstructure:"requiredstreak"`   // consecutive qualifying batches before Frozen
	LossWindow       int           `mapstructure:"losswindow"`       // consecutive empty batches before the identity is cleared
	SmoothingWindow  int           `mapstructure:"smoothingwindow"`  // majority-vote buffer over recent top detections
	AutoCaptureAfter time.Duration `mapstructure:"autocaptureafter"` // countdown from Frozen to automatic capture
}

// CaptureSettings configures capture persistence and deduplication.
type CaptureSettings struct {
	Cooldown        time.Duration `mapstructure:"cooldown"` // minimum gap between accepted captures of one species
	ImageDir        string        `mapstructure:"imagedir"`
	DBPath          string        `mapstructure:"dbpath"`
	StatsPath       string        `mapstructure:"statspath"`        // species stats JSON
	AchievementPath string        `mapstructure:"achievementpath"`  // achievements JSON
	DefaultLocation string        `mapstructure:"defaultlocation"`  // used when geolocation is unavailable
}

// MetricsSettings configures the append-only event log and Prometheus.
type MetricsSettings struct {
	EventLogPath string `mapstructure:"eventlogpath"` // JSONL metrics event sink
	Prometheus   bool   `mapstructure:"prometheus"`
	Listen       string `mapstructure:"listen"` // Prometheus endpoint address
}

// MQTTSettings configures the optional detection publisher.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EnrichmentSettings configures best-effort encyclopedia and geolocation
// lookups. These never block the pipeline.
type EnrichmentSettings struct {
	Languages        []string      `mapstructure:"languages"` // language priority for summaries
	SummaryCharLimit int           `mapstructure:"summarycharlimit"`
	CacheTTL         time.Duration `mapstructure:"cachettl"`
	GeolocationURL   string        `mapstructure:"geolocationurl"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration from disk and environment, applying defaults.
// configPath may be empty, in which case the usual config locations are
// searched and defaults are used when no file exists.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "zdex"))
		}
	}

	v.SetEnvPrefix("zdex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("reading config: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		// No config file is fine, defaults apply.
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("unmarshaling config: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	check := func(ok bool, format string, args ...any) error {
		if ok {
			return nil
		}
		return errors.Newf(format, args...).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := check(s.Camera.FrameQueueSize > 0, "camera.framequeuesize must be positive, got %d", s.Camera.FrameQueueSize); err != nil {
		return err
	}
	if err := check(s.Detection.ResultQueueSize > 0, "detection.resultqueuesize must be positive, got %d", s.Detection.ResultQueueSize); err != nil {
		return err
	}
	if err := check(s.Detection.Interval > 0, "detection.interval must be positive, got %v", s.Detection.Interval); err != nil {
		return err
	}
	// A zero queue timeout turns every consumer loop into a busy spin.
	if err := check(s.Detection.QueueTimeout > 0, "detection.queuetimeout must be positive, got %v", s.Detection.QueueTimeout); err != nil {
		return err
	}
	if err := check(s.Tracking.FreezeConfidence > 0 && s.Tracking.FreezeConfidence <= 1,
		"tracking.freezeconfidence must be in (0,1], got %v", s.Tracking.FreezeConfidence); err != nil {
		return err
	}
	if err := check(s.Tracking.RequiredStreak > 0, "tracking.requiredstreak must be positive, got %d", s.Tracking.RequiredStreak); err != nil {
		return err
	}
	if err := check(s.Tracking.LossWindow > 0, "tracking.losswindow must be positive, got %d", s.Tracking.LossWindow); err != nil {
		return err
	}
	if err := check(s.Capture.Cooldown >= 0, "capture.cooldown must not be negative, got %v", s.Capture.Cooldown); err != nil {
		return err
	}
	if s.MQTT.Enabled {
		if err := check(s.MQTT.Broker != "", "mqtt.broker is required when mqtt is enabled"); err != nil {
			return err
		}
	}
	return nil
}
