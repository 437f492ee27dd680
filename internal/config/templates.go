package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `name = "deskctl"
log_level = "info"

[connection]
# tcp | tls | ssh | websocket
transport = "tcp"
address = "127.0.0.1:7400"
session = ""
client_id = 1
width = 1280
height = 720
quality = 0
dial_timeout = "5s"
max_message_bytes = 67108864

[tls]
ca_file = ""
cert_file = ""
key_file = ""
server_name = ""
insecure_skip_verify = false

[ssh]
host = ""
port = "22"
user = ""
key_path = ""
known_hosts_path = ""
insecure_skip_host_key_checking = false

[status]
enabled = false
addr = "127.0.0.1:7480"
cors_origins = ["http://localhost:3000"]

[tunnel]
request_timeout = "10s"
data_ack_threshold = 32768
decode_timeout = "30s"

[qos]
adaptive = false
high_water = 8
low_water = 1
sustain = 3
recover = 60
max_index = 5
initial = 0
`

const peerTemplate = `name = "deskpeer"
log_level = "info"
listen = ":7400"
http_addr = ":7401"
cors_origins = ["http://localhost:3000"]
width = 1280
height = 720
windows = 2
# png | jpeg | raw
codec = "png"
backlog = 0
ping_interval = "5s"

[tls]
cert_file = ""
key_file = ""
client_ca_file = ""
`
