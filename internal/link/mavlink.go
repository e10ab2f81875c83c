// MAVLink transport backed by gomavlib
package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Endpoint describes one gomavlib endpoint.
type Endpoint struct {
	Kind    string // udp-server, udp-client, udp-broadcast, tcp-server, tcp-client, serial
	Address string
	Device  string
	Baud    int
}

// ParseEndpoint accepts pymavlink-style connection strings:
//
//	udpin:0.0.0.0:14550   udpout:10.0.0.2:14550   udpbcast:192.168.1.255:14550
//	tcpin:0.0.0.0:5760    tcp:127.0.0.1:5760      serial:/dev/ttyUSB0:57600
func ParseEndpoint(s string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || rest == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q", s)
	}
	switch scheme {
	case "udpin", "udp":
		return Endpoint{Kind: "udp-server", Address: rest}, nil
	case "udpout":
		return Endpoint{Kind: "udp-client", Address: rest}, nil
	case "udpbcast":
		return Endpoint{Kind: "udp-broadcast", Address: rest}, nil
	case "tcpin":
		return Endpoint{Kind: "tcp-server", Address: rest}, nil
	case "tcp":
		return Endpoint{Kind: "tcp-client", Address: rest}, nil
	case "serial":
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 {
			return Endpoint{}, fmt.Errorf("serial endpoint %q needs device:baud", s)
		}
		baud, err := strconv.Atoi(rest[idx+1:])
		if err != nil || baud <= 0 {
			return Endpoint{}, fmt.Errorf("serial endpoint %q has invalid baud", s)
		}
		return Endpoint{Kind: "serial", Device: rest[:idx], Baud: baud}, nil
	default:
		return Endpoint{}, fmt.Errorf("unknown endpoint scheme %q", scheme)
	}
}

func (e Endpoint) conf() (gomavlib.EndpointConf, error) {
	switch e.Kind {
	case "udp-server":
		return gomavlib.EndpointUDPServer{Address: e.Address}, nil
	case "udp-client":
		return gomavlib.EndpointUDPClient{Address: e.Address}, nil
	case "udp-broadcast":
		return gomavlib.EndpointUDPBroadcast{BroadcastAddress: e.Address}, nil
	case "tcp-server":
		return gomavlib.EndpointTCPServer{Address: e.Address}, nil
	case "tcp-client":
		return gomavlib.EndpointTCPClient{Address: e.Address}, nil
	case "serial":
		return gomavlib.EndpointSerial{Device: e.Device, Baud: e.Baud}, nil
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}
}

// MAVLinkConfig configures the gomavlib node.
type MAVLinkConfig struct {
	Endpoints   []Endpoint
	SystemID    uint8
	ComponentID uint8
	Buffer      int
}

// MAVLinkTransport adapts a gomavlib node to Transport. gomavlib nodes are
// safe for concurrent writes.
type MAVLinkTransport struct {
	node     *gomavlib.Node
	messages chan Message
	done     chan struct{}

	closeOnce sync.Once
}

// DialMAVLink opens the configured endpoints. The node's automatic heartbeat
// is disabled because the heartbeat sender worker owns that cadence.
func DialMAVLink(cfg MAVLinkConfig) (*MAVLinkTransport, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	confs := make([]gomavlib.EndpointConf, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		c, err := e.conf()
		if err != nil {
			return nil, err
		}
		confs = append(confs, c)
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultInboxSize
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:        confs,
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      cfg.SystemID,
		OutComponentID:   cfg.ComponentID,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create mavlink node: %w", err)
	}

	t := &MAVLinkTransport{
		node:     node,
		messages: make(chan Message, buffer),
		done:     make(chan struct{}),
	}
	go t.forward()
	return t, nil
}

func (t *MAVLinkTransport) forward() {
	defer close(t.done)
	for evt := range t.node.Events() {
		frm, ok := evt.(*gomavlib.EventFrame)
		if !ok {
			continue
		}
		m, ok := decodeMessage(frm.Message(), frm.SystemID(), frm.ComponentID())
		if !ok {
			continue
		}
		select {
		case t.messages <- m:
		default:
			// router is behind; the freshest data wins on the next frame
		}
	}
}

func (t *MAVLinkTransport) Messages() <-chan Message { return t.messages }

func (t *MAVLinkTransport) Done() <-chan struct{} { return t.done }

func (t *MAVLinkTransport) Write(m Message) error {
	select {
	case <-t.done:
		return errors.New("mavlink node closed")
	default:
	}
	out, err := encodeMessage(m)
	if err != nil {
		return err
	}
	t.node.WriteMessageAll(out)
	return nil
}

func (t *MAVLinkTransport) Close() error {
	t.closeOnce.Do(t.node.Close)
	return nil
}

func encodeMessage(m Message) (message.Message, error) {
	switch v := m.(type) {
	case Heartbeat:
		return &common.MessageHeartbeat{
			Type:           common.MAV_TYPE(v.Type),
			Autopilot:      common.MAV_AUTOPILOT(v.Autopilot),
			BaseMode:       common.MAV_MODE_FLAG(v.BaseMode),
			CustomMode:     v.CustomMode,
			SystemStatus:   common.MAV_STATE(v.SystemStatus),
			MavlinkVersion: 3,
		}, nil
	case CommandLong:
		return &common.MessageCommandLong{
			TargetSystem:    v.TargetSystem,
			TargetComponent: v.TargetComponent,
			Command:         common.MAV_CMD(v.Command),
			Confirmation:    v.Confirmation,
			Param1:          v.Params[0],
			Param2:          v.Params[1],
			Param3:          v.Params[2],
			Param4:          v.Params[3],
			Param5:          v.Params[4],
			Param6:          v.Params[5],
			Param7:          v.Params[6],
		}, nil
	case Attitude:
		return &common.MessageAttitude{
			TimeBootMs: v.TimeBootMs,
			Roll:       v.Roll,
			Pitch:      v.Pitch,
			Yaw:        v.Yaw,
			Rollspeed:  v.RollSpeed,
			Pitchspeed: v.PitchSpeed,
			Yawspeed:   v.YawSpeed,
		}, nil
	case LocalPosition:
		return &common.MessageLocalPositionNed{
			TimeBootMs: v.TimeBootMs,
			X:          v.X,
			Y:          v.Y,
			Z:          v.Z,
			Vx:         v.VX,
			Vy:         v.VY,
			Vz:         v.VZ,
		}, nil
	default:
		return nil, fmt.Errorf("cannot encode %T", m)
	}
}

func decodeMessage(m message.Message, systemID, componentID uint8) (Message, bool) {
	switch msg := m.(type) {
	case *common.MessageHeartbeat:
		return Heartbeat{
			SystemID:     systemID,
			ComponentID:  componentID,
			Type:         VehicleType(msg.Type),
			Autopilot:    AutopilotType(msg.Autopilot),
			BaseMode:     uint8(msg.BaseMode),
			CustomMode:   msg.CustomMode,
			SystemStatus: uint8(msg.SystemStatus),
		}, true
	case *common.MessageAttitude:
		return Attitude{
			TimeBootMs: msg.TimeBootMs,
			Roll:       msg.Roll,
			Pitch:      msg.Pitch,
			Yaw:        msg.Yaw,
			RollSpeed:  msg.Rollspeed,
			PitchSpeed: msg.Pitchspeed,
			YawSpeed:   msg.Yawspeed,
		}, true
	case *common.MessageLocalPositionNed:
		return LocalPosition{
			TimeBootMs: msg.TimeBootMs,
			X:          msg.X,
			Y:          msg.Y,
			Z:          msg.Z,
			VX:         msg.Vx,
			VY:         msg.Vy,
			VZ:         msg.Vz,
		}, true
	case *common.MessageCommandLong:
		return CommandLong{
			TargetSystem:    msg.TargetSystem,
			TargetComponent: msg.TargetComponent,
			Command:         CommandKind(msg.Command),
			Confirmation:    msg.Confirmation,
			Params: [7]float32{
				msg.Param1, msg.Param2, msg.Param3, msg.Param4,
				msg.Param5, msg.Param6, msg.Param7,
			},
		}, true
	default:
		return nil, false
	}
}
