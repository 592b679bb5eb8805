package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/proxy")

const socksPort = 10808

// Xray runs an xray-core subprocess exposing a vless outbound as a local
// socks5 proxy. The browser and the http clients point at Addr().
type Xray struct {
	vless Vless
	// Binary defaults to "xray" on PATH.
	Binary string

	cmd       *exec.Cmd
	configDir string
}

func NewXray(vless Vless) *Xray {
	return &Xray{vless: vless, Binary: "xray"}
}

// Addr is the socks5 url scrapers should dial through once Start returns.
func (x *Xray) Addr() string {
	return fmt.Sprintf("socks5://127.0.0.1:%d", socksPort)
}

func (x *Xray) buildConfig() ([]byte, error) {
	streamSettings := map[string]any{
		"network":  x.vless.Network,
		"security": x.vless.Security,
	}
	switch x.vless.Security {
	case "reality":
		streamSettings["realitySettings"] = map[string]any{
			"serverName":  x.vless.Sni,
			"publicKey":   x.vless.PublicKey,
			"shortId":     x.vless.ShortId,
			"fingerprint": x.vless.Fingerprint,
		}
	case "tls":
		streamSettings["tlsSettings"] = map[string]any{
			"serverName":  x.vless.Sni,
			"fingerprint": x.vless.Fingerprint,
		}
	}
	if x.vless.Network == "ws" {
		streamSettings["wsSettings"] = map[string]any{
			"path": x.vless.Path,
			"headers": map[string]string{
				"Host": x.vless.WsHost,
			},
		}
	}

	config := map[string]any{
		"log": map[string]any{"loglevel": "warning"},
		"inbounds": []any{
			map[string]any{
				"listen":   "127.0.0.1",
				"port":     socksPort,
				"protocol": "socks",
				"settings": map[string]any{"udp": true},
			},
		},
		"outbounds": []any{
			map[string]any{
				"protocol": "vless",
				"settings": map[string]any{
					"vnext": []any{
						map[string]any{
							"address": x.vless.Host,
							"port":    x.vless.Port,
							"users": []any{
								map[string]any{
									"id":         x.vless.Uuid,
									"encryption": "none",
									"flow":       x.vless.Flow,
								},
							},
						},
					},
				},
				"streamSettings": streamSettings,
			},
		},
	}
	return json.MarshalIndent(config, "", "  ")
}

// Start writes the xray config, launches the subprocess and waits for the
// socks port to accept connections.
func (x *Xray) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "StartXray")
	defer span.End()

	config, err := x.buildConfig()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build xray config")
		return err
	}

	x.configDir, err = os.MkdirTemp("", "xray-config-")
	if err != nil {
		return err
	}
	configPath := filepath.Join(x.configDir, "config.json")
	err = os.WriteFile(configPath, config, 0600)
	if err != nil {
		return err
	}

	x.cmd = exec.CommandContext(ctx, x.Binary, "run", "-c", configPath)
	x.cmd.Stdout = os.Stderr
	x.cmd.Stderr = os.Stderr
	err = x.cmd.Start()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start xray")
		return fmt.Errorf("start xray: %w", err)
	}
	slog.InfoContext(ctx, "started xray", "pid", x.cmd.Process.Pid, "server", x.vless.Name)

	err = waitForPort(ctx, fmt.Sprintf("127.0.0.1:%d", socksPort), time.Second*15)
	if err != nil {
		x.Stop()
		span.RecordError(err)
		span.SetStatus(codes.Error, "socks port never opened")
		return err
	}
	return nil
}

func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * 500):
		}
	}
	return fmt.Errorf("%s did not open within %s", addr, timeout)
}

// Stop kills the subprocess and removes the config.
func (x *Xray) Stop() {
	if x.cmd != nil && x.cmd.Process != nil {
		if err := x.cmd.Process.Kill(); err != nil {
			slog.Warn("failed to kill xray", "err", err)
		}
		x.cmd.Wait()
	}
	if x.configDir != "" {
		os.RemoveAll(x.configDir)
	}
}
