// Package mqtt publishes accepted captures and achievement unlocks to an
// MQTT broker. The publisher is an event bus consumer; delivery is
// fire-and-forget and a broker outage never affects the capture path.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/zdex/zdex-go/internal/capture"
	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/events"
	"github.com/zdex/zdex-go/internal/gamify"
	"github.com/zdex/zdex-go/internal/logging"
)

const publishTimeout = 10 * time.Second

// captureMessage is the wire format for an accepted capture.
type captureMessage struct {
	CaptureID      string    `json:"capture_id"`
	SpeciesID      string    `json:"species_uuid"`
	CommonName     string    `json:"common_name"`
	ScientificName string    `json:"scientific_name"`
	Confidence     float64   `json:"confidence"`
	Score          float64   `json:"score"`
	Location       string    `json:"location"`
	Auto           bool      `json:"auto_capture"`
	Timestamp      time.Time `json:"timestamp"`
}

// achievementMessage is the wire format for an unlocked achievement.
type achievementMessage struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	UnlockDate *time.Time `json:"unlock_date"`
}

// Publisher forwards bus events to an MQTT broker.
type Publisher struct {
	settings conf.MQTTSettings
	clientID string
	mu       sync.Mutex
	client   pahomqtt.Client
	log      *slog.Logger
}

// NewPublisher creates a publisher for the given broker settings. Connect
// must be called before events are delivered.
func NewPublisher(settings conf.MQTTSettings, clientID string) *Publisher {
	return &Publisher{
		settings: settings,
		clientID: clientID,
		log:      logging.ForService("mqtt"),
	}
}

// Connect establishes the broker connection. Auto-reconnect is left to the
// underlying client.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.settings.Broker)
	opts.SetClientID(p.clientID)
	opts.SetUsername(p.settings.Username)
	opts.SetPassword(p.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.log.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return errors.New(fmt.Errorf("connect timeout to %s", p.settings.Broker)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("connecting to broker: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("broker", p.settings.Broker).
			Build()
	}
	p.client = client
	p.log.Info("connected to mqtt broker", "broker", p.settings.Broker)
	return nil
}

// Name identifies this consumer on the event bus.
func (p *Publisher) Name() string { return "mqtt-publisher" }

// ProcessEvent publishes capture and achievement events; other event types
// are ignored.
func (p *Publisher) ProcessEvent(event events.Event) error {
	switch event.Type {
	case events.TypeCaptureCompleted:
		capt, ok := event.Payload.(*capture.Event)
		if !ok {
			return nil
		}
		return p.publishJSON(p.settings.Topic+"/captures", captureMessage{
			CaptureID:      capt.ID,
			SpeciesID:      capt.SpeciesID,
			CommonName:     capt.PredictedName,
			ScientificName: capt.ScientificName,
			Confidence:     capt.Confidence,
			Score:          capt.Score,
			Location:       capt.Location,
			Auto:           capt.Auto,
			Timestamp:      capt.Timestamp,
		})
	case events.TypeAchievementUnlocked:
		ach, ok := event.Payload.(gamify.Achievement)
		if !ok {
			return nil
		}
		return p.publishJSON(p.settings.Topic+"/achievements", achievementMessage{
			ID:         ach.ID,
			Name:       ach.Name,
			UnlockDate: ach.UnlockDate,
		})
	default:
		return nil
	}
}

func (p *Publisher) publishJSON(topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return errors.New(fmt.Errorf("not connected to broker")).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New(fmt.Errorf("publish timeout")).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return token.Error()
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
