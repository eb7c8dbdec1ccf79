package logger

// defaultKeyOrder puts the identifying keys first; the rest follow sorted.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"outcome",
	"rid",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"command",
	"route",
	"routes",
	"wait_id",
	"wait_kind",
	"key",
	"service",
	"channel_id",
	"query",
	"cache",
	"count",
	"duration_ms",
	"err",
	"err_code",
	"cause",
}

// enumFields lists keys with a closed set of values. Other values are dropped.
var enumFields = map[string]map[string]bool{
	"cache": {"hit": true, "miss": true},
	"outcome": {
		"ok":        true,
		"fail":      true,
		"cancelled": true,
		"consumed":  true,
		"unmatched": true,
	},
}
