package provision

import (
	"fmt"
	"strings"
)

const (
	installDir  = "/opt/backrest"
	unitPath    = "/etc/systemd/system/backrest.service"
	serviceUnit = `[Unit]
Description=Backrest backup agent
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=root
ExecStart=/opt/backrest/backrest
Environment=BACKREST_PORT=0.0.0.0:9898
Environment=BACKREST_CONFIG=/opt/backrest/config/config.json
Environment=BACKREST_DATA=/opt/backrest/data
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`
)

// installDirect downloads the release tarball, unpacks it, writes the
// systemd unit, and starts the service. Every remote failure carries the
// command's stderr for diagnosis.
func (d *Driver) installDirect(conn Runner) error {
	url := fmt.Sprintf(d.cfg.DownloadURL, d.cfg.AgentVersion)

	steps := []struct {
		name string
		cmd  string
	}{
		{"create directories", fmt.Sprintf("mkdir -p %s/config %s/data", installDir, installDir)},
		{"download release", fmt.Sprintf("curl -fsSL -o /tmp/backrest.tar.gz %s", url)},
		{"unpack release", fmt.Sprintf("tar -xzf /tmp/backrest.tar.gz -C %s && rm -f /tmp/backrest.tar.gz", installDir)},
	}
	for _, step := range steps {
		if err := d.remote(conn, step.name, step.cmd); err != nil {
			return err
		}
	}

	if err := conn.WriteFile(unitPath, []byte(serviceUnit), "0644"); err != nil {
		return fmt.Errorf("write systemd unit: %w", err)
	}

	startup := []struct {
		name string
		cmd  string
	}{
		{"daemon-reload", "systemctl daemon-reload"},
		{"enable service", "systemctl enable backrest"},
		{"start service", "systemctl start backrest"},
	}
	for _, step := range startup {
		if err := d.remote(conn, step.name, step.cmd); err != nil {
			d.captureJournal(conn)
			d.cleanupUnit(conn)
			return err
		}
	}

	res, err := conn.Run("systemctl is-active backrest")
	if err != nil {
		return fmt.Errorf("verify service: %w", err)
	}
	if strings.TrimSpace(res.Stdout) != "active" {
		d.captureJournal(conn)
		d.cleanupUnit(conn)
		return fmt.Errorf("service not active after start: %s", strings.TrimSpace(res.Stdout))
	}
	return nil
}

// remote runs one named install step, surfacing exit code and stderr.
func (d *Driver) remote(conn Runner, name, cmd string) error {
	res, err := conn.Run(cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if res.ExitCode != 0 {
		d.logger.Error().
			Str("step", name).
			Int("exit", res.ExitCode).
			Str("stderr", strings.TrimSpace(res.Stderr)).
			Msg("install step failed")
		return fmt.Errorf("%s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// captureJournal logs the service's recent journal for diagnosis.
func (d *Driver) captureJournal(conn Runner) {
	out, err := conn.Output("journalctl -u backrest --no-pager -n 50 || true")
	if err != nil {
		return
	}
	d.logger.Error().Str("journal", strings.TrimSpace(out)).Msg("backrest service journal")
}

// cleanupUnit removes a partially-installed unit so a retry starts clean.
// Best effort; the install error already stands.
func (d *Driver) cleanupUnit(conn Runner) {
	conn.Run(fmt.Sprintf("systemctl disable backrest 2>/dev/null; rm -f %s; systemctl daemon-reload", unitPath))
}
