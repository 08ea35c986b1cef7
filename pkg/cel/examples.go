package cel

// FilterExpressionExamples are sample sensor filters, also used to check
// that the environment accepts the documented variables.
var FilterExpressionExamples = map[string]string{
	"single_sensor":   `sensor_id == "device0"`,
	"sensor_prefix":   `sensor_id.startsWith("lab-")`,
	"topic_match":     `topic.startsWith("sensor/building1/")`,
	"has_metric":      `"temperature" in metrics`,
	"any_metric":      `metrics.exists(m, m.endsWith("_c"))`,
	"min_measures":    `measures >= 2`,
	"exclude_sensors": `!(sensor_id in ["test0", "test1"])`,
	"combined":        `sensor_id.startsWith("lab-") && "humidity" in metrics`,
	"topic_regex":     `topic.matches("^sensor/[a-z0-9]+$")`,
	"metric_count":    `size(metrics) <= 16`,
}
