package config

// configSchema is the closed CUE schema that .cue configuration files are
// unified with. Unknown fields are rejected.
const configSchema = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Config: {
	region?:            string & !=""
	partition?:         "aws" | "aws-cn" | "aws-us-gov"
	profile?:           string
	endpoint?:          string
	service_principal?: string & !=""
	shard_count?:       int & >=1 & <=500

	wait?: {
		initial_interval?: #Duration
		max_interval?:     #Duration
		multiplier?:       number & >=1
		settle_delay?:     #Duration
		stream_timeout?:   #Duration
		role_timeout?:     #Duration
		policy_timeout?:   #Duration
	}

	guardrails?: {
		enabled?:    bool
		policy_dir?: string
		disable?: [...string & !=""]
	}

	journal?: {
		enabled?: bool
		path?:    string
	}

	telemetry?: {
		log_level?:        "trace" | "debug" | "info" | "warn" | "error"
		log_format?:       "json" | "console"
		tracing_exporter?: "none" | "stdout" | "otlp"
		tracing_endpoint?: string
		tracing_insecure?: bool
		metrics_address?:  string
		metrics_textfile?: string
	}
}
`
