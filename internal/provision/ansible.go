package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// inventoryHost is one host entry in a rendered Ansible inventory.
type inventoryHost struct {
	AnsibleHost          string `yaml:"ansible_host"`
	AnsiblePort          int    `yaml:"ansible_port"`
	AnsibleUser          string `yaml:"ansible_user"`
	AnsibleSSHPrivateKey string `yaml:"ansible_ssh_private_key_file"`
	AnsibleSSHCommonArgs string `yaml:"ansible_ssh_common_args"`
}

type inventoryGroup struct {
	Hosts map[string]inventoryHost `yaml:"hosts"`
	Vars  map[string]string        `yaml:"vars,omitempty"`
}

type inventory struct {
	All inventoryGroup `yaml:"all"`
}

// renderInventory produces a single-host YAML inventory for the playbook.
func renderInventory(server *models.Server, keyPath string, vars map[string]string) ([]byte, error) {
	inv := inventory{
		All: inventoryGroup{
			Hosts: map[string]inventoryHost{
				server.Hostname: {
					AnsibleHost:          server.Hostname,
					AnsiblePort:          server.SSHPort,
					AnsibleUser:          server.SSHUser,
					AnsibleSSHPrivateKey: keyPath,
					AnsibleSSHCommonArgs: "-o StrictHostKeyChecking=no",
				},
			},
			Vars: vars,
		},
	}
	out, err := yaml.Marshal(&inv)
	if err != nil {
		return nil, fmt.Errorf("marshal inventory: %w", err)
	}
	return out, nil
}

// installWithPlaybook runs the local install playbook against the server
// with an ephemeral key file and a rendered inventory. Both are removed
// when the run finishes.
func (d *Driver) installWithPlaybook(ctx context.Context, server *models.Server, privateKey []byte) error {
	keyPath, cleanupKey, err := crypto.MaterializeKey(privateKey)
	if err != nil {
		return fmt.Errorf("materialize key: %w", err)
	}
	defer cleanupKey()

	rendered, err := renderInventory(server, keyPath, map[string]string{
		"backrest_version": d.cfg.AgentVersion,
		"backrest_port":    fmt.Sprintf("%d", server.AgentPort),
	})
	if err != nil {
		return err
	}

	invFile, err := os.CreateTemp("", "backhaul-inventory-*.yml")
	if err != nil {
		return fmt.Errorf("create inventory file: %w", err)
	}
	defer os.Remove(invFile.Name())
	if _, err := invFile.Write(rendered); err != nil {
		invFile.Close()
		return fmt.Errorf("write inventory: %w", err)
	}
	invFile.Close()

	cmd := exec.CommandContext(ctx, "ansible-playbook", "-i", invFile.Name(), d.cfg.PlaybookPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		d.logger.Error().
			Str("server", server.Hostname).
			Str("output", strings.TrimSpace(string(out))).
			Msg("playbook run failed")
		return fmt.Errorf("ansible-playbook: %w", err)
	}
	d.logger.Debug().Str("server", server.Hostname).Msg("playbook run complete")
	return nil
}
