package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers the default value for every configuration key.
// Values mirror the tuning the pipeline was developed against: inference
// every 300ms, small drop-oldest queues, a 0.9 freeze threshold and a
// one-minute per-species capture cooldown.
func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "zdex")
	v.SetDefault("main.datadir", "data")
	v.SetDefault("main.loglevel", "info")

	v.SetDefault("camera.deviceid", 0)
	v.SetDefault("camera.width", 960)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.fps", 30)
	v.SetDefault("camera.framequeuesize", 2)

	v.SetDefault("detection.interval", 300*time.Millisecond)
	v.SetDefault("detection.queuetimeout", 500*time.Millisecond)
	v.SetDefault("detection.threshold", 0.25)
	v.SetDefault("detection.topk", 3)
	v.SetDefault("detection.resultqueuesize", 2)
	v.SetDefault("detection.labelpath", "model/labels.txt")
	v.SetDefault("detection.detectormodel", "model/detector.onnx")
	v.SetDefault("detection.classifiermodel", "model/classifier.onnx")
	v.SetDefault("detection.inputsize", 320)

	v.SetDefault("tracking.freezeconfidence", 0.9)
	v.SetDefault("tracking.requiredstreak", 3)
	v.SetDefault("tracking.losswindow", 2)
	v.SetDefault("tracking.smoothingwindow", 5)
	v.SetDefault("tracking.autocaptureafter", 5*time.Second)

	v.SetDefault("capture.cooldown", 60*time.Second)
	v.SetDefault("capture.imagedir", "data/captures")
	v.SetDefault("capture.dbpath", "data/captures.db")
	v.SetDefault("capture.statspath", "data/stats.json")
	v.SetDefault("capture.achievementpath", "data/achievements.json")
	v.SetDefault("capture.defaultlocation", "Unknown location")

	v.SetDefault("metrics.eventlogpath", "data/metrics/events.jsonl")
	v.SetDefault("metrics.prometheus", false)
	v.SetDefault("metrics.listen", "localhost:8090")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "zdex/captures")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("enrichment.languages", []string{"en"})
	v.SetDefault("enrichment.summarycharlimit", 600)
	v.SetDefault("enrichment.cachettl", 30*time.Minute)
	v.SetDefault("enrichment.geolocationurl", "https://ipapi.co/json/")
	v.SetDefault("enrichment.timeout", 5*time.Second)
}
