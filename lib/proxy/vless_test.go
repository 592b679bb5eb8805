package proxy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVlessReality(t *testing.T) {
	uri := "vless://b6a3f7c2-9a1d-4f0e-8d21-0c3a5e7f9b42@198.51.100.7:443" +
		"?type=tcp&security=reality&sni=www.microsoft.com&pbk=publen-key&sid=6ba1" +
		"&fp=chrome&flow=xtls-rprx-vision#us-west"

	v, err := ParseVless(uri)
	require.NoError(t, err)
	require.Equal(t, "b6a3f7c2-9a1d-4f0e-8d21-0c3a5e7f9b42", v.Uuid)
	require.Equal(t, "198.51.100.7", v.Host)
	require.Equal(t, 443, v.Port)
	require.Equal(t, "tcp", v.Network)
	require.Equal(t, "reality", v.Security)
	require.Equal(t, "www.microsoft.com", v.Sni)
	require.Equal(t, "publen-key", v.PublicKey)
	require.Equal(t, "6ba1", v.ShortId)
	require.Equal(t, "chrome", v.Fingerprint)
	require.Equal(t, "xtls-rprx-vision", v.Flow)
	require.Equal(t, "us-west", v.Name)
}

func TestParseVlessWebsocket(t *testing.T) {
	uri := "vless://b6a3f7c2-9a1d-4f0e-8d21-0c3a5e7f9b42@cdn.example.com:443" +
		"?type=ws&security=tls&path=%2Fws&host=edge.example.com#cdn"

	v, err := ParseVless(uri)
	require.NoError(t, err)
	require.Equal(t, "ws", v.Network)
	require.Equal(t, "tls", v.Security)
	require.Equal(t, "/ws", v.Path)
	require.Equal(t, "edge.example.com", v.WsHost)
	// sni falls back to the ws host when the uri omits it
	require.Equal(t, "edge.example.com", v.Sni)
}

func TestParseVlessDefaults(t *testing.T) {
	v, err := ParseVless("vless://uuid-value@host.example.com:8443")
	require.NoError(t, err)
	require.Equal(t, "tcp", v.Network)
	require.Equal(t, "none", v.Security)
}

func TestParseVlessRejectsMalformed(t *testing.T) {
	for _, uri := range []string{
		"",
		"trojan://uuid@host:443",
		"vless://@host:443",
		"vless://uuid@:443",
		"vless://uuid@host:notaport",
		"vless://uuid@host",
	} {
		_, err := ParseVless(uri)
		require.Error(t, err, uri)
	}
}

func TestXrayConfig(t *testing.T) {
	v, err := ParseVless(
		"vless://uuid-value@198.51.100.7:443?type=ws&security=tls&sni=cdn.example.com&path=%2Fws&host=cdn.example.com#srv",
	)
	require.NoError(t, err)

	raw, err := NewXray(v).buildConfig()
	require.NoError(t, err)

	var config map[string]any
	require.NoError(t, json.Unmarshal(raw, &config))

	inbounds := config["inbounds"].([]any)
	require.Len(t, inbounds, 1)
	require.Equal(t, "socks", inbounds[0].(map[string]any)["protocol"])
	require.Equal(t, float64(socksPort), inbounds[0].(map[string]any)["port"])

	outbounds := config["outbounds"].([]any)
	require.Len(t, outbounds, 1)
	outbound := outbounds[0].(map[string]any)
	require.Equal(t, "vless", outbound["protocol"])

	stream := outbound["streamSettings"].(map[string]any)
	require.Equal(t, "ws", stream["network"])
	require.Equal(t, "tls", stream["security"])
	require.Equal(t, "/ws", stream["wsSettings"].(map[string]any)["path"])
}
