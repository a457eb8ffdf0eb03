// Package turn runs an optional embedded TURN relay so WebRTC peers behind
// symmetric NATs can still reach each other, and builds the ICE server list
// handed to clients.
package turn

import (
	"fmt"
	"net"

	"coderoom/internal/config"
	"coderoom/pkg/logger"

	"github.com/pion/logging"
	pionturn "github.com/pion/turn/v4"
)

// ICEServer mirrors the RTCIceServer dictionary browsers expect.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type Server struct {
	server *pionturn.Server
	addr   net.Addr
}

// Start listens on cfg.TURN.ListenAddr (UDP) and relays through
// cfg.TURN.PublicIP. A single long-term credential is accepted.
func Start(cfg *config.Config) (*Server, error) {
	tc := cfg.TURN
	relayIP := net.ParseIP(tc.PublicIP)
	if relayIP == nil {
		return nil, fmt.Errorf("invalid TURN public IP %q", tc.PublicIP)
	}

	conn, err := net.ListenPacket("udp4", tc.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for TURN on %s: %w", tc.ListenAddr, err)
	}

	key := pionturn.GenerateAuthKey(tc.Username, tc.Realm, tc.Password)
	server, err := pionturn.NewServer(pionturn.ServerConfig{
		Realm: tc.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			if username != tc.Username {
				logger.Warn("TURN auth rejected for %q from %s", username, srcAddr)
				return nil, false
			}
			return key, true
		},
		PacketConnConfigs: []pionturn.PacketConnConfig{
			{
				PacketConn: conn,
				RelayAddressGenerator: &pionturn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start TURN server: %w", err)
	}

	logger.Info("TURN relay listening on %s (relay ip %s)", conn.LocalAddr(), tc.PublicIP)
	return &Server{server: server, addr: conn.LocalAddr()}, nil
}

func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Close() error {
	return s.server.Close()
}

// ICEServers lists the configured STUN servers and, when the relay is
// enabled, the TURN endpoint with its credential.
func ICEServers(cfg *config.Config) []ICEServer {
	servers := make([]ICEServer, 0, 2)
	if len(cfg.TURN.STUNServers) > 0 {
		servers = append(servers, ICEServer{URLs: cfg.TURN.STUNServers})
	}
	if cfg.TURN.Enabled {
		_, port, err := net.SplitHostPort(cfg.TURN.ListenAddr)
		if err != nil || port == "" {
			port = "3478"
		}
		servers = append(servers, ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", net.JoinHostPort(cfg.TURN.PublicIP, port))},
			Username:   cfg.TURN.Username,
			Credential: cfg.TURN.Password,
		})
	}
	return servers
}
